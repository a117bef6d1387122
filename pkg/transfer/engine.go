package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gammazero/workerpool"

	"github.com/gitdrive/gitdrive/internal/logger"
	"github.com/gitdrive/gitdrive/internal/ratelimiter"
	"github.com/gitdrive/gitdrive/pkg/chunk"
	"github.com/gitdrive/gitdrive/pkg/githost"
	"github.com/gitdrive/gitdrive/pkg/metadata"
	"github.com/gitdrive/gitdrive/pkg/pool"
)

// ErrBudgetExhausted indicates a transfer kept failing with retryable errors
// until the attempt budget ran out. Retryable failures are never surfaced to
// the orchestrator below this budget.
var ErrBudgetExhausted = errors.New("transfer retry budget exhausted")

// Policy configures retry, backoff, pacing and parallelism. All thresholds
// are operator-tunable; the backend's real limits can only be discovered
// empirically.
type Policy struct {
	// MaxAttempts bounds tries per transfer, first attempt included.
	MaxAttempts int

	// InitialInterval, Multiplier and MaxInterval shape the exponential
	// backoff curve between attempts.
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration

	// RateLimitWait is the extra floor applied when a failure classifies as
	// rate-limited, on top of the regular backoff interval.
	RateLimitWait time.Duration

	// RequestsPerSecond and Burst pace backend calls through a token
	// bucket. 0 disables pacing.
	RequestsPerSecond uint
	Burst             uint

	// Workers bounds parallel per-repository batches. Different
	// repositories are independent failure domains with independent
	// rate-limit budgets, so cross-repository parallelism is safe.
	Workers int

	// Classify buckets backend errors. Defaults to the package Classify.
	Classify Classifier
}

// DefaultPolicy returns the settings that have survived contact with the
// real backend: a handful of attempts, 1s doubling to a 60s cap, and eight
// parallel pushers.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       6,
		InitialInterval:   time.Second,
		Multiplier:        2.0,
		MaxInterval:       60 * time.Second,
		RateLimitWait:     20 * time.Second,
		RequestsPerSecond: 5,
		Burst:             10,
		Workers:           8,
		Classify:          Classify,
	}
}

// Engine executes chunk transfers under a Policy.
type Engine struct {
	policy  Policy
	limiter *ratelimiter.RateLimiter
}

// New returns an engine for the given policy. Zero-valued policy fields fall
// back to DefaultPolicy.
func New(policy Policy) *Engine {
	def := DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = def.InitialInterval
	}
	if policy.Multiplier <= 1 {
		policy.Multiplier = def.Multiplier
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = def.MaxInterval
	}
	if policy.RateLimitWait <= 0 {
		policy.RateLimitWait = def.RateLimitWait
	}
	if policy.Workers <= 0 {
		policy.Workers = def.Workers
	}
	if policy.Classify == nil {
		policy.Classify = Classify
	}

	return &Engine{
		policy:  policy,
		limiter: ratelimiter.New(policy.RequestsPerSecond, policy.Burst),
	}
}

// Item is one chunk scheduled for transfer.
type Item struct {
	Ref     metadata.ChunkRef
	Payload []byte
}

// Group is the set of chunks bound for one repository. Chunks within a group
// travel in a single commit/push; groups travel in parallel.
type Group struct {
	Repo  *metadata.Repo
	Items []Item
}

// GroupByRepo buckets chunk refs by owning repository, preserving snapshot
// repo entries so capacity accounting lands on the source of truth.
func GroupByRepo(snap *metadata.Snapshot, items []Item) []Group {
	byName := make(map[string]*Group)
	var order []string
	for _, it := range items {
		g, ok := byName[it.Ref.Repo]
		if !ok {
			g = &Group{Repo: snap.Repos[it.Ref.Repo]}
			byName[it.Ref.Repo] = g
			order = append(order, it.Ref.Repo)
		}
		g.Items = append(g.Items, it)
	}

	groups := make([]Group, 0, len(order))
	for _, name := range order {
		groups = append(groups, *byName[name])
	}
	return groups
}

// PushBatch stages and pushes every group, parallel across repositories.
//
// Per group: open (or reuse) the repository workspace, stage all chunk
// payloads under their deterministic names, then commit and push with
// retry. On confirmed push the group's bytes move from reserved to committed
// in the tracker; on terminal failure they are released so a failed chunk
// never inflates recorded usage. Any group failure fails the batch.
func (e *Engine) PushBatch(ctx context.Context, p *pool.Pool, tracker *pool.Tracker, groups []Group, message string) error {
	wp := workerpool.New(e.policy.Workers)

	var mu sync.Mutex
	var firstErr error

	for _, g := range groups {
		g := g
		wp.Submit(func() {
			err := e.pushGroup(ctx, p, tracker, g, message)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}
	wp.StopWait()

	return firstErr
}

func (e *Engine) pushGroup(ctx context.Context, p *pool.Pool, tracker *pool.Tracker, g Group, message string) error {
	var total int64
	for _, it := range g.Items {
		total += it.Ref.Size
	}

	release := func() {
		tracker.Release(g.Repo, total)
	}

	ws, err := e.openWorkspace(ctx, p, g.Repo.Name)
	if err != nil {
		release()
		return err
	}

	for _, it := range g.Items {
		if err := ws.Put(it.Ref.ID, it.Payload); err != nil {
			release()
			return fmt.Errorf("stage chunk %s: %w", it.Ref.ID, err)
		}
	}

	what := fmt.Sprintf("push %d chunks to %s", len(g.Items), g.Repo.Name)
	if err := e.retry(ctx, what, func(ctx context.Context) error {
		return ws.Push(ctx, message)
	}); err != nil {
		release()
		return err
	}

	tracker.Confirm(g.Repo, total)
	logger.Debug("pushed %d chunks (%d bytes) to %s", len(g.Items), total, g.Repo.Name)
	return nil
}

// PullBatch retrieves every chunk ref, parallel across repositories, and
// returns the pieces recorded by sequence index. Reassembly order is the
// caller's job; this method only guarantees that piece i carries index i's
// payload.
func (e *Engine) PullBatch(ctx context.Context, p *pool.Pool, refs []metadata.ChunkRef) ([]chunk.Piece, error) {
	pieces := make([]chunk.Piece, len(refs))

	byRepo := make(map[string][]metadata.ChunkRef)
	var order []string
	for _, ref := range refs {
		if _, ok := byRepo[ref.Repo]; !ok {
			order = append(order, ref.Repo)
		}
		byRepo[ref.Repo] = append(byRepo[ref.Repo], ref)
	}

	wp := workerpool.New(e.policy.Workers)

	var mu sync.Mutex
	var firstErr error

	for _, name := range order {
		name := name
		repoRefs := byRepo[name]
		wp.Submit(func() {
			err := e.pullRepo(ctx, p, name, repoRefs, pieces, refs)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}
	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}
	return pieces, nil
}

func (e *Engine) pullRepo(ctx context.Context, p *pool.Pool, name string, repoRefs []metadata.ChunkRef, pieces []chunk.Piece, all []metadata.ChunkRef) error {
	ws, err := e.openWorkspace(ctx, p, name)
	if err != nil {
		return err
	}

	for _, ref := range repoRefs {
		payload, err := ws.Get(ref.ID)
		if err != nil {
			return fmt.Errorf("pull chunk %d of %d: %w", ref.Index, len(all), err)
		}
		// Each index is written by exactly one worker, so no lock is needed.
		pieces[ref.Index] = chunk.Piece{Index: ref.Index, Data: payload}
	}
	return nil
}

// openWorkspace obtains the repository workspace with retry: the underlying
// clone is a network fetch and fails under the same throttling as pushes.
func (e *Engine) openWorkspace(ctx context.Context, p *pool.Pool, name string) (githost.Workspace, error) {
	var ws githost.Workspace
	err := e.retry(ctx, "open workspace "+name, func(ctx context.Context) error {
		var err error
		ws, err = p.Workspace(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// retry runs op under the engine's policy: token-bucket pacing before every
// attempt, classification of every failure, exponential backoff between
// attempts with an extra floor for rate-limited ones, and a bounded attempt
// budget that converts persistent failure into a terminal error.
func (e *Engine) retry(ctx context.Context, what string, op func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.policy.InitialInterval
	bo.Multiplier = e.policy.Multiplier
	bo.MaxInterval = e.policy.MaxInterval
	bo.MaxElapsedTime = 0

	attempts := 0
	lastClass := ClassTransient

	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			lastClass = ClassPermanent
			return backoff.Permanent(err)
		}

		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}

		lastClass = e.policy.Classify(err)
		switch lastClass {
		case ClassPermanent:
			return backoff.Permanent(err)
		case ClassRateLimited:
			logger.Warn("%s: rate limited on attempt %d/%d: %v",
				what, attempts, e.policy.MaxAttempts, err)
			if werr := sleepCtx(ctx, e.policy.RateLimitWait); werr != nil {
				lastClass = ClassPermanent
				return backoff.Permanent(werr)
			}
		default:
			logger.Debug("%s: attempt %d/%d failed: %v",
				what, attempts, e.policy.MaxAttempts, err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(e.policy.MaxAttempts-1)), ctx))
	if err == nil {
		return nil
	}
	if lastClass != ClassPermanent {
		return fmt.Errorf("%s: %v: %w", what, err, ErrBudgetExhausted)
	}
	return err
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
