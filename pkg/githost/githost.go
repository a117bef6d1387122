// Package githost abstracts the code-hosting backend behind the generic
// repository-management and version-control primitives the drive needs:
// create/delete/list repositories, and clone/put/get/push against a local
// working copy.
//
// The backend offers no transactional guarantees and throttles aggressively,
// so every method here is a point-to-point, at-least-once-attempted operation.
// Retrying a Put of an already-stored chunk must not duplicate or corrupt it;
// implementations get that for free because chunk object names are
// deterministic content-derived identifiers.
package githost

import (
	"context"
	"errors"
)

var (
	// ErrRepoNotFound indicates the named repository does not exist on the
	// backend.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrRepoExists indicates a repository with this name already exists.
	ErrRepoExists = errors.New("repository already exists")

	// ErrRateLimited indicates the backend rejected the request under its
	// primary API quota. Callers should back off and retry.
	ErrRateLimited = errors.New("backend rate limited")

	// ErrSecondaryLimited indicates the backend tripped its secondary
	// (burst/abuse) limit, observed empirically when many repositories are
	// created in quick succession. Distinct from ErrRateLimited because the
	// limit has a different shape and needs a longer backoff.
	ErrSecondaryLimited = errors.New("backend secondary rate limited")

	// ErrObjectNotFound indicates the requested chunk object is absent from
	// the repository's working copy.
	ErrObjectNotFound = errors.New("object not found in repository")
)

// Service manages repository lifecycle on the hosting backend.
type Service interface {
	// CreateRepo provisions a new private repository. Fails with
	// ErrRepoExists if the name is taken, or with ErrRateLimited /
	// ErrSecondaryLimited under throttling.
	CreateRepo(ctx context.Context, name string) error

	// DeleteRepo removes a repository and everything in it. Idempotent:
	// deleting an absent repository succeeds.
	DeleteRepo(ctx context.Context, name string) error

	// RepoExists reports whether the named repository exists.
	RepoExists(ctx context.Context, name string) (bool, error)

	// ListRepos returns the names of all repositories owned by the
	// configured account.
	ListRepos(ctx context.Context) ([]string, error)
}

// Workspace is a local working copy of one backend repository, sufficient to
// read and write chunk objects and push the result.
//
// A workspace is operation-scoped: the pool reuses one workspace per
// repository within an operation and closes them all when the operation ends,
// whatever its outcome.
type Workspace interface {
	// Put stages a chunk object under its deterministic name. Writing an
	// object that already exists replaces it with identical bytes, so
	// retried pushes are harmless.
	Put(id string, payload []byte) error

	// Get reads a chunk object from the working copy. Fails with
	// ErrObjectNotFound if absent.
	Get(id string) ([]byte, error)

	// Push commits all staged objects and pushes them to the backend in one
	// commit with the given message. A push with nothing staged is a no-op.
	Push(ctx context.Context, message string) error

	// Path returns the workspace's local directory.
	Path() string

	// Close removes the local working copy. The remote repository is
	// untouched.
	Close() error
}

// Host combines repository management with workspace access. This is the
// complete backend surface the drive depends on.
type Host interface {
	Service

	// Open clones (or otherwise materializes) the named repository into a
	// local working copy rooted under dir. The repository must exist.
	Open(ctx context.Context, name, dir string) (Workspace, error)
}
