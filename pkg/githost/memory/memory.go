// Package memory provides an in-memory githost backend for tests.
//
// Repositories are plain maps of object name to payload. Failure hooks let
// tests inject rate-limit and transport errors per call, and call counters
// let tests assert which backend operations an orchestration path performed.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gitdrive/gitdrive/pkg/githost"
)

// Host is an in-memory githost.Host.
//
// The zero value is not usable; call New.
type Host struct {
	mu    sync.Mutex
	repos map[string]map[string][]byte

	// CreateErr, OpenErr and PushErr, when non-nil, are consulted before
	// each corresponding operation. The attempt counter is per repository
	// and starts at 1. Returning a non-nil error fails the call.
	CreateErr func(name string, attempt int) error
	OpenErr   func(name string, attempt int) error
	PushErr   func(name string, attempt int) error

	createAttempts map[string]int
	openAttempts   map[string]int
	pushAttempts   map[string]int

	// Call counters, for asserting that an operation performed no backend
	// traffic.
	CreateCalls int
	OpenCalls   int
	PushCalls   int
}

// New returns an empty in-memory backend.
func New() *Host {
	return &Host{
		repos:          make(map[string]map[string][]byte),
		createAttempts: make(map[string]int),
		openAttempts:   make(map[string]int),
		pushAttempts:   make(map[string]int),
	}
}

func (h *Host) CreateRepo(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.CreateCalls++
	h.createAttempts[name]++
	if h.CreateErr != nil {
		if err := h.CreateErr(name, h.createAttempts[name]); err != nil {
			return err
		}
	}

	if _, ok := h.repos[name]; ok {
		return fmt.Errorf("create %s: %w", name, githost.ErrRepoExists)
	}
	h.repos[name] = make(map[string][]byte)
	return nil
}

func (h *Host) DeleteRepo(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.repos, name)
	return nil
}

func (h *Host) RepoExists(ctx context.Context, name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.repos[name]
	return ok, nil
}

func (h *Host) ListRepos(ctx context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.repos))
	for name := range h.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Open returns a workspace over a private copy of the repository's objects.
// Puts stay local until Push merges them back, mirroring the clone/commit/
// push cycle of the real backend.
func (h *Host) Open(ctx context.Context, name, dir string) (githost.Workspace, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.OpenCalls++
	h.openAttempts[name]++
	if h.OpenErr != nil {
		if err := h.OpenErr(name, h.openAttempts[name]); err != nil {
			return nil, err
		}
	}

	repo, ok := h.repos[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, githost.ErrRepoNotFound)
	}

	staged := make(map[string][]byte, len(repo))
	for id, payload := range repo {
		staged[id] = append([]byte(nil), payload...)
	}
	return &workspace{host: h, name: name, dir: dir, staged: staged}, nil
}

// Objects returns a copy of a repository's stored objects, for assertions.
func (h *Host) Objects(name string) map[string][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	repo := h.repos[name]
	out := make(map[string][]byte, len(repo))
	for id, payload := range repo {
		out[id] = append([]byte(nil), payload...)
	}
	return out
}

type workspace struct {
	host   *Host
	name   string
	dir    string
	staged map[string][]byte
	dirty  bool
	closed bool
}

func (w *workspace) Put(id string, payload []byte) error {
	w.staged[id] = append([]byte(nil), payload...)
	w.dirty = true
	return nil
}

func (w *workspace) Get(id string) ([]byte, error) {
	payload, ok := w.staged[id]
	if !ok {
		return nil, fmt.Errorf("object %s in %s: %w", id, w.name, githost.ErrObjectNotFound)
	}
	return append([]byte(nil), payload...), nil
}

func (w *workspace) Push(ctx context.Context, message string) error {
	if !w.dirty {
		return nil
	}

	w.host.mu.Lock()
	defer w.host.mu.Unlock()

	w.host.PushCalls++
	w.host.pushAttempts[w.name]++
	if w.host.PushErr != nil {
		if err := w.host.PushErr(w.name, w.host.pushAttempts[w.name]); err != nil {
			return err
		}
	}

	repo, ok := w.host.repos[w.name]
	if !ok {
		return fmt.Errorf("push %s: %w", w.name, githost.ErrRepoNotFound)
	}
	for id, payload := range w.staged {
		repo[id] = append([]byte(nil), payload...)
	}
	w.dirty = false
	return nil
}

func (w *workspace) Path() string {
	return w.dir
}

func (w *workspace) Close() error {
	w.closed = true
	return nil
}
