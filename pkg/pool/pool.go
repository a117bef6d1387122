package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/gitdrive/gitdrive/pkg/githost"
	"github.com/gitdrive/gitdrive/pkg/metadata"
)

// repoNameFormat numbers storage repositories in provisioning order.
const repoNameFormat = "storage-%04d"

// Pool allocates a destination repository for each chunk and hands out local
// workspaces for transfers.
//
// Allocation is first-fit over OPEN repositories in creation order: simple,
// O(open repos), and good enough because repositories are cheap and
// effectively unlimited in count. When no existing repository fits, a new one
// is provisioned and registered in the snapshot's repository registry — the
// pool itself stores no second copy of that truth.
//
// A Pool is operation-scoped. Workspaces are cached per repository for the
// duration of the operation and torn down by Close regardless of the
// operation's outcome.
type Pool struct {
	snap    *metadata.Snapshot
	tracker *Tracker
	host    githost.Host
	workDir string

	mu         sync.Mutex
	workspaces map[string]githost.Workspace
}

// New returns a pool over the given operation snapshot.
func New(snap *metadata.Snapshot, tracker *Tracker, host githost.Host, workDir string) *Pool {
	return &Pool{
		snap:       snap,
		tracker:    tracker,
		host:       host,
		workDir:    workDir,
		workspaces: make(map[string]githost.Workspace),
	}
}

// AllocateForWrite reserves n bytes somewhere and returns the repository
// entry that accepted them.
//
// Existing OPEN repositories are scanned in creation order; the first with
// room wins. If none fit, a new repository is provisioned with
// ErrProvisionFailed on rejection. Chunk size never exceeds the ceiling
// (enforced by config validation), so a freshly provisioned repository always
// has room and a single chunk is never split across repositories.
func (p *Pool) AllocateForWrite(ctx context.Context, n int64) (*metadata.Repo, error) {
	for _, repo := range p.snap.OpenRepos() {
		if err := p.tracker.Reserve(repo, n); err == nil {
			return repo, nil
		}
	}
	return p.provision(ctx, n)
}

// provision creates the next numbered repository on the backend and
// registers it.
func (p *Pool) provision(ctx context.Context, n int64) (*metadata.Repo, error) {
	p.mu.Lock()
	name := fmt.Sprintf(repoNameFormat, p.snap.NextRepoID)
	p.snap.NextRepoID++
	p.mu.Unlock()

	// The snapshot may know about a repository that a crashed run already
	// created on the backend. Creation is skipped, not failed, in that case.
	exists, err := p.host.RepoExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check %s: %v: %w", name, err, ErrProvisionFailed)
	}
	if !exists {
		if err := p.host.CreateRepo(ctx, name); err != nil {
			return nil, fmt.Errorf("create %s: %v: %w", name, err, ErrProvisionFailed)
		}
	}

	p.mu.Lock()
	repo := p.snap.AddRepo(name)
	p.mu.Unlock()

	if err := p.tracker.Reserve(repo, n); err != nil {
		return nil, fmt.Errorf("fresh repository %s rejected %d bytes: %w", name, n, err)
	}
	return repo, nil
}

// Workspace returns a local working copy of the named repository, reusing
// one already opened during this operation.
func (p *Pool) Workspace(ctx context.Context, name string) (githost.Workspace, error) {
	p.mu.Lock()
	if ws, ok := p.workspaces[name]; ok {
		p.mu.Unlock()
		return ws, nil
	}
	p.mu.Unlock()

	ws, err := p.host.Open(ctx, name, p.workDir)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.workspaces[name]; ok {
		// Lost the race; keep the first one.
		_ = ws.Close()
		return cached, nil
	}
	p.workspaces[name] = ws
	return ws, nil
}

// Close tears down every workspace opened during the operation. Always
// called, success or failure.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, ws := range p.workspaces {
		if err := ws.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close workspace %s: %w", name, err)
		}
		delete(p.workspaces, name)
	}
	return firstErr
}
