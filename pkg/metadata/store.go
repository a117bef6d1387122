package metadata

import "context"

// Store persists the drive's authoritative Snapshot.
//
// Semantics:
//   - Load returns the full current snapshot. It fails with ErrUnavailable
//     when the backend cannot be reached; no operation may proceed without
//     authoritative metadata.
//   - Commit persists the full snapshot and must be the last action of any
//     successful mutating operation, after every chunk transfer has been
//     confirmed. Either the whole updated document lands or the prior one
//     remains authoritative; there are no partial commits.
//
// The store assumes a single writer. It performs no backend-side locking or
// merging: two concurrent writers would race on Load/Commit and one would
// silently clobber the other. The orchestrator enforces the single-writer
// discipline.
type Store interface {
	// Load fetches the current snapshot from the backend. A backend that has
	// never been initialized returns a fresh empty snapshot.
	Load(ctx context.Context) (*Snapshot, error)

	// Commit persists snap as the new authoritative snapshot.
	Commit(ctx context.Context, snap *Snapshot) error
}
