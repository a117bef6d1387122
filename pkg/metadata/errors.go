package metadata

import "errors"

// These errors are the metadata layer's contribution to the drive-wide error
// taxonomy. Callers match them with errors.Is; implementations wrap them with
// fmt.Errorf("...: %w", ...) for context.

var (
	// ErrNotFound indicates the requested logical file does not exist in the
	// snapshot.
	ErrNotFound = errors.New("file not found")

	// ErrAlreadyExists indicates a logical file with this name is already
	// recorded. The namespace is append-only: uploads never overwrite.
	ErrAlreadyExists = errors.New("file already exists")

	// ErrUnavailable indicates the metadata backend could not be reached or
	// the snapshot could not be loaded. Fatal for the whole operation: no
	// mutation may proceed without authoritative metadata.
	ErrUnavailable = errors.New("metadata unavailable")

	// ErrIncompatibleVersion indicates the persisted snapshot was written by
	// an incompatible format version. Mutating operations are rejected so an
	// older binary cannot corrupt a newer layout.
	ErrIncompatibleVersion = errors.New("incompatible snapshot version")

	// ErrCorruptSnapshot indicates the snapshot document failed to parse or
	// violates its own invariants.
	ErrCorruptSnapshot = errors.New("corrupt metadata snapshot")
)
