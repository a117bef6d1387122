package drive

import (
	"context"
	"errors"
	"fmt"

	"github.com/gitdrive/gitdrive/internal/logger"
	"github.com/gitdrive/gitdrive/pkg/githost"
	"github.com/gitdrive/gitdrive/pkg/metadata"
)

// Initialize provisions the metadata repository and commits an empty
// snapshot. Idempotent: a drive that is already initialized is left as is.
func (d *Drive) Initialize(ctx context.Context) error {
	exists, err := d.host.RepoExists(ctx, d.opts.MetadataRepo)
	if err != nil {
		return fmt.Errorf("check metadata repository: %w", err)
	}
	if !exists {
		if err := d.host.CreateRepo(ctx, d.opts.MetadataRepo); err != nil &&
			!errors.Is(err, githost.ErrRepoExists) {
			return fmt.Errorf("create metadata repository: %w", err)
		}
	}

	snap, err := d.store.Load(ctx)
	if err != nil {
		return err
	}
	if len(snap.Files) > 0 || len(snap.Repos) > 0 {
		logger.Info("drive already initialized: %d files, %d repositories",
			len(snap.Files), len(snap.Repos))
		return nil
	}

	if err := d.store.Commit(ctx, snap); err != nil {
		return err
	}
	logger.Info("initialized drive in %s", d.opts.MetadataRepo)
	return nil
}

// Clean deletes every storage repository and resets the snapshot to empty.
// All stored files are destroyed; the metadata repository itself survives so
// the drive stays initialized.
func (d *Drive) Clean(ctx context.Context) error {
	snap, err := d.loadForWrite(ctx)
	if err != nil {
		return err
	}

	for _, name := range snap.RepoOrder {
		if err := d.host.DeleteRepo(ctx, name); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
		logger.Debug("deleted repository %s", name)
	}

	if err := d.store.Commit(ctx, metadata.NewSnapshot()); err != nil {
		return err
	}

	logger.Info("cleaned drive: deleted %d repositories", len(snap.RepoOrder))
	return nil
}
