package drive

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/gitdrive/gitdrive/internal/logger"
	"github.com/gitdrive/gitdrive/pkg/chunk"
	"github.com/gitdrive/gitdrive/pkg/metadata"
	"github.com/gitdrive/gitdrive/pkg/pool"
	"github.com/gitdrive/gitdrive/pkg/transfer"
)

// Upload stores the local file at path under the logical name.
//
// The namespace is append-only: uploading a name that already exists fails
// with metadata.ErrAlreadyExists before any chunk is transferred. The file is
// hashed and planned from its size first, so every chunk has a destination
// repository before any payload is read; the payloads are then read chunk by
// chunk and pushed. The file becomes visible only with the final snapshot
// commit.
func (d *Drive) Upload(ctx context.Context, path, name string) error {
	snap, err := d.loadForWrite(ctx)
	if err != nil {
		return err
	}
	if snap.Lookup(name) != nil {
		return fmt.Errorf("%s: %w", name, metadata.ErrAlreadyExists)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	checksum, err := chunk.FileChecksum(path)
	if err != nil {
		return err
	}

	staging, cleanup, err := d.staging()
	if err != nil {
		return err
	}
	defer cleanup()

	work := snap.Clone()
	tracker := pool.NewTracker(d.opts.RepoCeiling)
	p := pool.New(work, tracker, d.host, staging)
	defer p.Close()

	// Allocate a destination for every planned chunk before reading any
	// payload, so allocation failures abort with nothing transferred.
	plan := chunk.Plan(info.Size(), d.opts.ChunkSize)
	refs := make([]metadata.ChunkRef, len(plan))
	for i, size := range plan {
		repo, err := p.AllocateForWrite(ctx, size)
		if err != nil {
			return fmt.Errorf("allocate chunk %d of %s: %w", i, name, err)
		}
		refs[i] = metadata.ChunkRef{
			Index: i,
			Size:  size,
			Repo:  repo.Name,
			ID:    chunk.ID(checksum, i),
		}
	}

	items, err := readChunks(path, refs)
	if err != nil {
		return err
	}

	groups := transfer.GroupByRepo(work, items)
	if err := d.engine.PushBatch(ctx, p, tracker, groups, "add "+name); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}

	// A repository that has reached its ceiling is closed for good; partial
	// headroom smaller than a chunk would otherwise be rescanned on every
	// allocation.
	for _, g := range groups {
		if g.Repo.CommittedBytes >= d.opts.RepoCeiling {
			tracker.MarkFull(g.Repo)
		}
	}

	work.Files[name] = &metadata.File{
		Name:     name,
		Checksum: checksum,
		Size:     info.Size(),
		Status:   metadata.StatusActive,
		Chunks:   refs,
	}

	if err := d.store.Commit(ctx, work); err != nil {
		return fmt.Errorf("commit snapshot for %s: %w", name, err)
	}

	logger.Info("uploaded %s: %s in %d chunks across %d repositories",
		name, humanize.Bytes(uint64(info.Size())), len(refs), len(groups))
	return nil
}

// readChunks reads the file sequentially, one planned chunk at a time. A file
// whose size changed since planning fails here rather than producing a
// snapshot entry that disagrees with the stored payloads.
func readChunks(path string, refs []metadata.ChunkRef) ([]transfer.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	items := make([]transfer.Item, len(refs))
	for i, ref := range refs {
		payload := make([]byte, ref.Size)
		if _, err := io.ReadFull(f, payload); err != nil {
			return nil, fmt.Errorf("read chunk %d of %s: %w", i, path, err)
		}
		items[i] = transfer.Item{Ref: ref, Payload: payload}
	}

	if _, err := f.Read(make([]byte, 1)); err != io.EOF {
		return nil, fmt.Errorf("%s grew while uploading", path)
	}
	return items, nil
}
