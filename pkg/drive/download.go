package drive

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/gitdrive/gitdrive/internal/logger"
	"github.com/gitdrive/gitdrive/pkg/chunk"
	"github.com/gitdrive/gitdrive/pkg/metadata"
	"github.com/gitdrive/gitdrive/pkg/pool"
)

// Download reassembles the logical file name into the local path dest.
//
// An unknown name fails with metadata.ErrNotFound before any chunk transfer
// is attempted. The reassembled content is verified against the recorded size
// and checksum before dest is written, so dest never holds corrupt output.
func (d *Drive) Download(ctx context.Context, name, dest string) error {
	snap, err := d.store.Load(ctx)
	if err != nil {
		return err
	}
	f := snap.Lookup(name)
	if f == nil {
		return fmt.Errorf("%s: %w", name, metadata.ErrNotFound)
	}

	staging, cleanup, err := d.staging()
	if err != nil {
		return err
	}
	defer cleanup()

	p := pool.New(snap, pool.NewTracker(d.opts.RepoCeiling), d.host, staging)
	defer p.Close()

	pieces, err := d.engine.PullBatch(ctx, p, f.Chunks)
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}

	data, err := chunk.Join(pieces)
	if err != nil {
		return fmt.Errorf("reassemble %s: %w", name, err)
	}
	if int64(len(data)) != f.Size || chunk.Checksum(data) != f.Checksum {
		return fmt.Errorf("%s: %w", name, ErrChecksumMismatch)
	}

	// Write-then-rename so dest is never left half-written.
	tmp := dest + ".partial"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize %s: %w", dest, err)
	}

	logger.Info("downloaded %s: %s from %d chunks",
		name, humanize.Bytes(uint64(len(data))), len(f.Chunks))
	return nil
}
