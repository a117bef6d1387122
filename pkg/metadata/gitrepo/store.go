// Package gitrepo persists the metadata snapshot as a single JSON document in
// a dedicated repository on the hosting backend.
//
// The document is rewritten whole on every commit. That costs bandwidth
// proportional to drive size, but it keeps recovery trivial: the repository
// head either holds the previous complete snapshot or the new one, never a
// mix.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gitdrive/gitdrive/pkg/githost"
	"github.com/gitdrive/gitdrive/pkg/metadata"
)

// SnapshotFile is the object name of the snapshot document inside the
// metadata repository.
const SnapshotFile = "snapshot.json"

// Store implements metadata.Store over a git repository.
//
// The workspace is cloned lazily on first use and reused for the life of the
// store, so the Load/Commit pair of one operation shares a single clone.
type Store struct {
	host     githost.Host
	repoName string
	workDir  string

	mu sync.Mutex
	ws githost.Workspace
}

// New returns a store reading and writing the named metadata repository.
func New(host githost.Host, repoName, workDir string) *Store {
	return &Store{
		host:     host,
		repoName: repoName,
		workDir:  workDir,
	}
}

// Load fetches and validates the current snapshot. A metadata repository that
// exists but holds no snapshot document yet yields a fresh empty snapshot; an
// unreachable or missing repository yields ErrUnavailable.
func (s *Store) Load(ctx context.Context) (*metadata.Snapshot, error) {
	ws, err := s.workspace(ctx)
	if err != nil {
		return nil, err
	}

	data, err := ws.Get(SnapshotFile)
	if errors.Is(err, githost.ErrObjectNotFound) {
		return metadata.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s from %s: %v: %w",
			SnapshotFile, s.repoName, err, metadata.ErrUnavailable)
	}

	return metadata.DecodeSnapshot(data)
}

// Commit persists snap as the new authoritative snapshot. The whole document
// lands in one commit; a failed push leaves the previous head authoritative.
func (s *Store) Commit(ctx context.Context, snap *metadata.Snapshot) error {
	data, err := metadata.EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	ws, err := s.workspace(ctx)
	if err != nil {
		return err
	}

	if err := ws.Put(SnapshotFile, data); err != nil {
		return fmt.Errorf("stage %s: %v: %w", SnapshotFile, err, metadata.ErrUnavailable)
	}
	if err := ws.Push(ctx, "update snapshot"); err != nil {
		return fmt.Errorf("push %s: %v: %w", s.repoName, err, metadata.ErrUnavailable)
	}
	return nil
}

// Close releases the metadata workspace, if one was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ws == nil {
		return nil
	}
	err := s.ws.Close()
	s.ws = nil
	return err
}

func (s *Store) workspace(ctx context.Context) (githost.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ws != nil {
		return s.ws, nil
	}

	ws, err := s.host.Open(ctx, s.repoName, s.workDir)
	if err != nil {
		return nil, fmt.Errorf("open metadata repository %s: %v: %w",
			s.repoName, err, metadata.ErrUnavailable)
	}
	s.ws = ws
	return ws, nil
}
