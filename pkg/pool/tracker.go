// Package pool manages storage repository lifecycle: capacity bookkeeping,
// first-fit allocation of a repository for each chunk, lazy provisioning of
// new repositories, and operation-scoped local workspaces.
package pool

import (
	"errors"
	"sync"

	"github.com/gitdrive/gitdrive/pkg/metadata"
)

var (
	// ErrCapacityExceeded indicates a reservation would push a repository
	// past its ceiling, or the repository is FULL. The pool responds by
	// trying the next repository.
	ErrCapacityExceeded = errors.New("repository capacity exceeded")

	// ErrProvisionFailed indicates the backend rejected creation of a new
	// repository. Fatal for the current operation; provisioning is not
	// retried because creation failures are treated as non-transient within
	// one attempt.
	ErrProvisionFailed = errors.New("repository provisioning failed")
)

// Tracker enforces the capacity ceiling of every storage repository.
//
// Reservations are provisional: Reserve marks bytes as spoken for, Confirm
// moves them into the repository's committed count after the transfer
// succeeds, and Release rolls them back after a terminal transfer failure so
// a failed chunk never permanently inflates a repository's recorded usage.
//
// Confirmed bytes live on the snapshot's Repo entries (the single source of
// truth); the tracker only overlays the in-flight reservations. All methods
// are safe for concurrent use: reservations against the same repository are a
// critical section even when chunk transfers run in parallel.
type Tracker struct {
	mu       sync.Mutex
	ceiling  int64
	reserved map[string]int64
}

// NewTracker returns a tracker with the given per-repository byte ceiling.
func NewTracker(ceiling int64) *Tracker {
	return &Tracker{
		ceiling:  ceiling,
		reserved: make(map[string]int64),
	}
}

// Reserve provisionally claims n bytes in repo. It fails with
// ErrCapacityExceeded when the repository is FULL or when committed plus
// reserved plus n would exceed the ceiling.
func (t *Tracker) Reserve(repo *metadata.Repo, n int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if repo.Status == metadata.RepoFull {
		return ErrCapacityExceeded
	}
	if repo.CommittedBytes+t.reserved[repo.Name]+n > t.ceiling {
		return ErrCapacityExceeded
	}
	t.reserved[repo.Name] += n
	return nil
}

// Confirm converts n reserved bytes into committed bytes after a successful
// transfer.
func (t *Tracker) Confirm(repo *metadata.Repo, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reserved[repo.Name] -= n
	repo.CommittedBytes += n
}

// Release rolls back n reserved bytes after a transfer that exhausted its
// retries.
func (t *Tracker) Release(repo *metadata.Repo, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reserved[repo.Name] -= n
}

// MarkFull closes repo to future reservations regardless of remaining
// headroom. Existing chunks stay readable. This is the defensive margin
// against overflow from commit metadata and transfer overhead.
func (t *Tracker) MarkFull(repo *metadata.Repo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	repo.Status = metadata.RepoFull
}
