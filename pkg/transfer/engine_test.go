package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gitdrive/gitdrive/pkg/chunk"
	"github.com/gitdrive/gitdrive/pkg/githost"
	"github.com/gitdrive/gitdrive/pkg/githost/memory"
	"github.com/gitdrive/gitdrive/pkg/metadata"
	"github.com/gitdrive/gitdrive/pkg/pool"
)

// testPolicy keeps retries fast enough for unit tests while preserving the
// production retry shape.
func testPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: time.Millisecond,
		Multiplier:      1.5,
		MaxInterval:     5 * time.Millisecond,
		RateLimitWait:   time.Millisecond,
		Workers:         2,
	}
}

func testFixture(t *testing.T) (*metadata.Snapshot, *pool.Tracker, *memory.Host, *pool.Pool) {
	t.Helper()

	snap := metadata.NewSnapshot()
	tracker := pool.NewTracker(1 << 20)
	host := memory.New()
	p := pool.New(snap, tracker, host, t.TempDir())
	return snap, tracker, host, p
}

func reserveItems(t *testing.T, snap *metadata.Snapshot, tracker *pool.Tracker, repoName string, payloads ...[]byte) []Item {
	t.Helper()

	repo := snap.AddRepo(repoName)
	items := make([]Item, len(payloads))
	for i, payload := range payloads {
		ref := metadata.ChunkRef{
			Index: i,
			Size:  int64(len(payload)),
			Repo:  repoName,
			ID:    fmt.Sprintf("%s_%04d.chunk", chunk.Checksum(payload), i),
		}
		if err := tracker.Reserve(repo, ref.Size); err != nil {
			t.Fatalf("Reserve() failed: %v", err)
		}
		items[i] = Item{Ref: ref, Payload: payload}
	}
	return items
}

func TestPushBatch_StoresChunksAndCommitsBytes(t *testing.T) {
	snap, tracker, host, p := testFixture(t)
	defer p.Close()

	if err := host.CreateRepo(context.Background(), "storage-0001"); err != nil {
		t.Fatalf("CreateRepo() failed: %v", err)
	}
	items := reserveItems(t, snap, tracker, "storage-0001",
		[]byte("first chunk"), []byte("second chunk"))

	engine := New(testPolicy())
	err := engine.PushBatch(context.Background(), p, tracker,
		GroupByRepo(snap, items), "add chunks")
	if err != nil {
		t.Fatalf("PushBatch() failed: %v", err)
	}

	objects := host.Objects("storage-0001")
	for _, it := range items {
		if !bytes.Equal(objects[it.Ref.ID], it.Payload) {
			t.Errorf("object %s not stored correctly", it.Ref.ID)
		}
	}

	want := int64(len("first chunk") + len("second chunk"))
	if got := snap.Repos["storage-0001"].CommittedBytes; got != want {
		t.Errorf("CommittedBytes = %d, want %d", got, want)
	}
}

// A transfer that hits the backend's throttling fewer times than the retry
// budget must succeed without surfacing any error to the caller.
func TestPushBatch_RateLimitedBelowBudgetSucceeds(t *testing.T) {
	snap, tracker, host, p := testFixture(t)
	defer p.Close()

	if err := host.CreateRepo(context.Background(), "storage-0001"); err != nil {
		t.Fatalf("CreateRepo() failed: %v", err)
	}
	items := reserveItems(t, snap, tracker, "storage-0001", []byte("payload"))

	// Two throttled pushes, then success: well within a 4-attempt budget.
	host.PushErr = func(name string, attempt int) error {
		if attempt <= 2 {
			return fmt.Errorf("push %s: %w", name, githost.ErrRateLimited)
		}
		return nil
	}

	engine := New(testPolicy())
	err := engine.PushBatch(context.Background(), p, tracker,
		GroupByRepo(snap, items), "add chunks")
	if err != nil {
		t.Fatalf("PushBatch() surfaced an error despite retries remaining: %v", err)
	}

	if host.PushCalls != 3 {
		t.Errorf("PushCalls = %d, want 3", host.PushCalls)
	}
	if got := snap.Repos["storage-0001"].CommittedBytes; got != int64(len("payload")) {
		t.Errorf("CommittedBytes = %d, want %d", got, len("payload"))
	}
}

func TestPushBatch_BudgetExhaustedReleasesReservation(t *testing.T) {
	snap, tracker, host, p := testFixture(t)
	defer p.Close()

	if err := host.CreateRepo(context.Background(), "storage-0001"); err != nil {
		t.Fatalf("CreateRepo() failed: %v", err)
	}
	items := reserveItems(t, snap, tracker, "storage-0001", []byte("payload"))

	host.PushErr = func(name string, attempt int) error {
		return errors.New("connection reset by peer")
	}

	policy := testPolicy()
	engine := New(policy)
	err := engine.PushBatch(context.Background(), p, tracker,
		GroupByRepo(snap, items), "add chunks")
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("PushBatch() error = %v, want ErrBudgetExhausted", err)
	}

	if host.PushCalls != policy.MaxAttempts {
		t.Errorf("PushCalls = %d, want %d", host.PushCalls, policy.MaxAttempts)
	}
	if got := snap.Repos["storage-0001"].CommittedBytes; got != 0 {
		t.Errorf("CommittedBytes = %d after failed push, want 0", got)
	}

	// The reservation must be rolled back: the full ceiling is available again.
	if err := tracker.Reserve(snap.Repos["storage-0001"], 1<<20); err != nil {
		t.Errorf("Reserve() after release failed: %v", err)
	}
}

func TestPushBatch_PermanentErrorFailsWithoutRetry(t *testing.T) {
	snap, tracker, host, p := testFixture(t)
	defer p.Close()

	if err := host.CreateRepo(context.Background(), "storage-0001"); err != nil {
		t.Fatalf("CreateRepo() failed: %v", err)
	}
	items := reserveItems(t, snap, tracker, "storage-0001", []byte("payload"))

	host.PushErr = func(name string, attempt int) error {
		return fmt.Errorf("push %s: %w", name, githost.ErrRepoNotFound)
	}

	engine := New(testPolicy())
	err := engine.PushBatch(context.Background(), p, tracker,
		GroupByRepo(snap, items), "add chunks")
	if !errors.Is(err, githost.ErrRepoNotFound) {
		t.Fatalf("PushBatch() error = %v, want ErrRepoNotFound", err)
	}
	if errors.Is(err, ErrBudgetExhausted) {
		t.Error("permanent failure should not report an exhausted budget")
	}
	if host.PushCalls != 1 {
		t.Errorf("PushCalls = %d, want 1 (no retry on permanent errors)", host.PushCalls)
	}
}

func TestPushBatch_RecoversFromTransientOpenFailure(t *testing.T) {
	snap, tracker, host, p := testFixture(t)
	defer p.Close()

	if err := host.CreateRepo(context.Background(), "storage-0001"); err != nil {
		t.Fatalf("CreateRepo() failed: %v", err)
	}
	items := reserveItems(t, snap, tracker, "storage-0001", []byte("payload"))

	host.OpenErr = func(name string, attempt int) error {
		if attempt == 1 {
			return errors.New("dial tcp: i/o timeout")
		}
		return nil
	}

	engine := New(testPolicy())
	err := engine.PushBatch(context.Background(), p, tracker,
		GroupByRepo(snap, items), "add chunks")
	if err != nil {
		t.Fatalf("PushBatch() failed: %v", err)
	}
	if host.OpenCalls != 2 {
		t.Errorf("OpenCalls = %d, want 2", host.OpenCalls)
	}
}

func TestPullBatch_ReassemblesAcrossRepositories(t *testing.T) {
	snap, _, host, p := testFixture(t)
	defer p.Close()

	ctx := context.Background()
	parts := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	repos := []string{"storage-0001", "storage-0002", "storage-0001"}

	var refs []metadata.ChunkRef
	for i, part := range parts {
		name := repos[i]
		if ok, _ := host.RepoExists(ctx, name); !ok {
			if err := host.CreateRepo(ctx, name); err != nil {
				t.Fatalf("CreateRepo() failed: %v", err)
			}
			snap.AddRepo(name)
		}
		ref := metadata.ChunkRef{
			Index: i,
			Size:  int64(len(part)),
			Repo:  name,
			ID:    fmt.Sprintf("%s_%04d.chunk", chunk.Checksum(part), i),
		}
		refs = append(refs, ref)

		ws, err := host.Open(ctx, name, t.TempDir())
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		if err := ws.Put(ref.ID, part); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		if err := ws.Push(ctx, "seed"); err != nil {
			t.Fatalf("Push() failed: %v", err)
		}
	}

	engine := New(testPolicy())
	pieces, err := engine.PullBatch(ctx, p, refs)
	if err != nil {
		t.Fatalf("PullBatch() failed: %v", err)
	}

	joined, err := chunk.Join(pieces)
	if err != nil {
		t.Fatalf("Join() failed: %v", err)
	}
	if want := []byte("alphabetagamma"); !bytes.Equal(joined, want) {
		t.Errorf("reassembled content = %q, want %q", joined, want)
	}
}

func TestPullBatch_MissingChunkIsPermanent(t *testing.T) {
	snap, _, host, p := testFixture(t)
	defer p.Close()

	ctx := context.Background()
	if err := host.CreateRepo(ctx, "storage-0001"); err != nil {
		t.Fatalf("CreateRepo() failed: %v", err)
	}
	snap.AddRepo("storage-0001")

	refs := []metadata.ChunkRef{{
		Index: 0,
		Size:  4,
		Repo:  "storage-0001",
		ID:    "deadbeef_0000.chunk",
	}}

	engine := New(testPolicy())
	_, err := engine.PullBatch(ctx, p, refs)
	if !errors.Is(err, githost.ErrObjectNotFound) {
		t.Fatalf("PullBatch() error = %v, want ErrObjectNotFound", err)
	}
}

func TestRetry_ContextCancellationStopsRetrying(t *testing.T) {
	snap, tracker, host, p := testFixture(t)
	defer p.Close()

	if err := host.CreateRepo(context.Background(), "storage-0001"); err != nil {
		t.Fatalf("CreateRepo() failed: %v", err)
	}
	items := reserveItems(t, snap, tracker, "storage-0001", []byte("payload"))

	ctx, cancel := context.WithCancel(context.Background())
	host.PushErr = func(name string, attempt int) error {
		cancel()
		return errors.New("connection reset by peer")
	}

	policy := testPolicy()
	policy.InitialInterval = 50 * time.Millisecond
	engine := New(policy)

	start := time.Now()
	err := engine.PushBatch(ctx, p, tracker, GroupByRepo(snap, items), "add chunks")
	if err == nil {
		t.Fatal("PushBatch() should fail once the context is cancelled")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("PushBatch() kept retrying %v past cancellation", elapsed)
	}
}

func TestGroupByRepo_PreservesFirstSeenOrder(t *testing.T) {
	snap := metadata.NewSnapshot()
	snap.AddRepo("storage-0001")
	snap.AddRepo("storage-0002")

	items := []Item{
		{Ref: metadata.ChunkRef{Index: 0, Repo: "storage-0002"}},
		{Ref: metadata.ChunkRef{Index: 1, Repo: "storage-0001"}},
		{Ref: metadata.ChunkRef{Index: 2, Repo: "storage-0002"}},
	}

	groups := GroupByRepo(snap, items)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Repo.Name != "storage-0002" || len(groups[0].Items) != 2 {
		t.Errorf("group 0 = %s with %d items, want storage-0002 with 2",
			groups[0].Repo.Name, len(groups[0].Items))
	}
	if groups[1].Repo.Name != "storage-0001" || len(groups[1].Items) != 1 {
		t.Errorf("group 1 = %s with %d items, want storage-0001 with 1",
			groups[1].Repo.Name, len(groups[1].Items))
	}
}
