// Package memory provides an in-memory metadata.Store for tests.
package memory

import (
	"context"
	"sync"

	"github.com/gitdrive/gitdrive/pkg/metadata"
)

// Store keeps the snapshot as an encoded document, so every Load/Commit pair
// exercises the same serialization path as the real store.
//
// LoadErr and CommitErr, when non-nil, fail the corresponding call. Call
// counters let tests assert whether an operation reached the metadata layer.
type Store struct {
	mu  sync.Mutex
	doc []byte

	LoadErr   error
	CommitErr error

	LoadCalls   int
	CommitCalls int
}

// New returns an empty store: the first Load yields a fresh snapshot.
func New() *Store {
	return &Store{}
}

// Seed installs snap as the persisted state without counting as a commit.
func (s *Store) Seed(snap *metadata.Snapshot) error {
	data, err := metadata.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.doc = data
	s.mu.Unlock()
	return nil
}

func (s *Store) Load(ctx context.Context) (*metadata.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LoadCalls++
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if s.doc == nil {
		return metadata.NewSnapshot(), nil
	}
	return metadata.DecodeSnapshot(s.doc)
}

func (s *Store) Commit(ctx context.Context, snap *metadata.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CommitCalls++
	if s.CommitErr != nil {
		return s.CommitErr
	}
	data, err := metadata.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	s.doc = data
	return nil
}
