// Package drive orchestrates the chunked file store: it splits logical files
// across size-capped storage repositories on the hosting backend and keeps the
// authoritative name-to-chunk mapping in a metadata snapshot.
//
// Every mutating operation follows the same shape: load the snapshot, mutate
// a private clone while transferring chunks, and commit the whole updated
// document as the final step. A crash at any earlier point leaves the previous
// snapshot authoritative; orphaned chunk objects may remain in storage
// repositories but are unreferenced and invisible.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/gitdrive/gitdrive/pkg/githost"
	"github.com/gitdrive/gitdrive/pkg/metadata"
	"github.com/gitdrive/gitdrive/pkg/transfer"
)

var (
	// ErrLocked indicates another process holds the drive lock. Concurrent
	// writers would race on the snapshot and silently clobber each other, so
	// the whole drive admits one process at a time.
	ErrLocked = errors.New("drive is locked by another process")

	// ErrChecksumMismatch indicates reassembled download content does not
	// match the checksum recorded at upload time.
	ErrChecksumMismatch = errors.New("content failed checksum verification")
)

// lockFile is the lock's name inside the work directory.
const lockFile = "drive.lock"

// Options configures a Drive.
type Options struct {
	// MetadataRepo names the repository holding the metadata snapshot.
	MetadataRepo string

	// ChunkSize is the split size in bytes. Must not exceed RepoCeiling so a
	// single chunk always fits a fresh repository.
	ChunkSize int

	// RepoCeiling is the per-repository capacity ceiling in bytes.
	RepoCeiling int64

	// WorkDir roots the drive lock and the per-operation staging clones.
	WorkDir string
}

// Drive is the single entry point for drive operations. A Drive holds the
// process-wide lock from New until Close.
type Drive struct {
	host   githost.Host
	store  metadata.Store
	engine *transfer.Engine
	opts   Options
	lock   *flock.Flock
}

// New validates opts, prepares the work directory and acquires the drive
// lock. Fails with ErrLocked if another process holds it.
func New(host githost.Host, store metadata.Store, engine *transfer.Engine, opts Options) (*Drive, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}
	if int64(opts.ChunkSize) > opts.RepoCeiling {
		return nil, fmt.Errorf("chunk size %d exceeds repository ceiling %d",
			opts.ChunkSize, opts.RepoCeiling)
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	lock := flock.New(filepath.Join(opts.WorkDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire drive lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	return &Drive{
		host:   host,
		store:  store,
		engine: engine,
		opts:   opts,
		lock:   lock,
	}, nil
}

// Close releases the drive lock and the metadata store's resources.
func (d *Drive) Close() error {
	var firstErr error
	if c, ok := d.store.(io.Closer); ok {
		firstErr = c.Close()
	}
	if err := d.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// staging creates a per-operation directory for workspace clones, and a
// cleanup removing it whatever the operation's outcome.
func (d *Drive) staging() (string, func(), error) {
	dir, err := os.MkdirTemp(d.opts.WorkDir, "op-")
	if err != nil {
		return "", nil, fmt.Errorf("create staging directory: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// loadForWrite loads the snapshot and rejects format versions this binary
// must not mutate.
func (d *Drive) loadForWrite(ctx context.Context) (*metadata.Snapshot, error) {
	snap, err := d.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := metadata.CheckWritable(snap); err != nil {
		return nil, err
	}
	return snap, nil
}
