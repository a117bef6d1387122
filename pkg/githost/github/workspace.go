package github

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/gitdrive/gitdrive/pkg/githost"
)

// workspace is a shallow clone of one drive repository.
type workspace struct {
	host *Host
	name string
	dir  string
	repo *git.Repository
}

// Open clones the named repository into a fresh directory under dir.
//
// A repository that exists on the backend but has no commits yet (just
// provisioned) cannot be cloned; it is initialized locally with the remote
// configured, and the first Push creates the initial commit.
func (h *Host) Open(ctx context.Context, name, dir string) (githost.Workspace, error) {
	cloneDir := filepath.Join(dir, name)
	if err := os.RemoveAll(cloneDir); err != nil {
		return nil, fmt.Errorf("failed to clear workspace dir: %w", err)
	}

	repo, err := git.PlainCloneContext(ctx, cloneDir, false, &git.CloneOptions{
		URL:   h.repoURL(name),
		Auth:  h.auth(),
		Depth: 1,
	})
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		repo, err = h.initEmpty(cloneDir, name)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return nil, fmt.Errorf("clone %s: %w", name, githost.ErrRepoNotFound)
	default:
		return nil, fmt.Errorf("clone %s: %w", name, err)
	}

	return &workspace{host: h, name: name, dir: cloneDir, repo: repo}, nil
}

// initEmpty sets up a local repository for a remote that has no commits yet.
func (h *Host) initEmpty(cloneDir, name string) (*git.Repository, error) {
	repo, err := git.PlainInitWithOptions(cloneDir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", name, err)
	}
	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{h.repoURL(name)},
	})
	if err != nil {
		return nil, fmt.Errorf("configure remote for %s: %w", name, err)
	}
	return repo, nil
}

func (h *Host) repoURL(name string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", h.cfg.Owner, name)
}

func (h *Host) auth() *githttp.BasicAuth {
	// GitHub ignores the username when a token is supplied as the password.
	return &githttp.BasicAuth{Username: "x-access-token", Password: h.cfg.Token}
}

func (w *workspace) Put(id string, payload []byte) error {
	path := filepath.Join(w.dir, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("failed to stage object %s: %w", id, err)
	}
	return nil
}

func (w *workspace) Get(id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s in %s: %w", id, w.name, githost.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to read object %s: %w", id, err)
	}
	return data, nil
}

// Push commits everything staged and pushes it to the backend. A workspace
// with no modifications is left alone.
func (w *workspace) Push(ctx context.Context, message string) error {
	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree for %s: %w", w.name, err)
	}

	if err := wt.AddGlob("."); err != nil {
		return fmt.Errorf("stage objects in %s: %w", w.name, err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("status for %s: %w", w.name, err)
	}
	if status.IsClean() {
		return nil
	}

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  w.host.cfg.CommitterName,
			Email: w.host.cfg.CommitterEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit in %s: %w", w.name, err)
	}

	err = w.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		Auth:       w.host.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s: %w", w.name, err)
	}
	return nil
}

func (w *workspace) Path() string {
	return w.dir
}

func (w *workspace) Close() error {
	return os.RemoveAll(w.dir)
}
