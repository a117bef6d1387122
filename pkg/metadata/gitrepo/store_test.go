package gitrepo

import (
	"context"
	"errors"
	"testing"

	"github.com/gitdrive/gitdrive/pkg/githost/memory"
	"github.com/gitdrive/gitdrive/pkg/metadata"
)

const metadataRepo = "metadata"

func newBackend(t *testing.T) *memory.Host {
	t.Helper()

	host := memory.New()
	if err := host.CreateRepo(context.Background(), metadataRepo); err != nil {
		t.Fatalf("CreateRepo() failed: %v", err)
	}
	return host
}

func TestLoad_EmptyRepositoryYieldsFreshSnapshot(t *testing.T) {
	host := newBackend(t)
	store := New(host, metadataRepo, t.TempDir())
	defer store.Close()

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if snap.Version != metadata.SnapshotVersion {
		t.Errorf("Version = %q, want %q", snap.Version, metadata.SnapshotVersion)
	}
	if len(snap.Files) != 0 || len(snap.Repos) != 0 {
		t.Errorf("fresh snapshot not empty: %d files, %d repos",
			len(snap.Files), len(snap.Repos))
	}
}

func TestLoad_MissingRepositoryIsUnavailable(t *testing.T) {
	store := New(memory.New(), metadataRepo, t.TempDir())
	defer store.Close()

	_, err := store.Load(context.Background())
	if !errors.Is(err, metadata.ErrUnavailable) {
		t.Fatalf("Load() error = %v, want ErrUnavailable", err)
	}
}

func TestLoad_CorruptDocumentIsRejected(t *testing.T) {
	host := newBackend(t)

	ctx := context.Background()
	ws, err := host.Open(ctx, metadataRepo, t.TempDir())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := ws.Put(SnapshotFile, []byte("{not json")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := ws.Push(ctx, "seed"); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}

	store := New(host, metadataRepo, t.TempDir())
	defer store.Close()

	_, err = store.Load(ctx)
	if !errors.Is(err, metadata.ErrCorruptSnapshot) {
		t.Fatalf("Load() error = %v, want ErrCorruptSnapshot", err)
	}
}

func TestCommit_RoundTripsThroughBackend(t *testing.T) {
	host := newBackend(t)
	ctx := context.Background()

	store := New(host, metadataRepo, t.TempDir())
	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	repo := snap.AddRepo("storage-0001")
	repo.CommittedBytes = 42
	snap.NextRepoID = 2
	snap.Files["report.pdf"] = &metadata.File{
		Name:     "report.pdf",
		Checksum: "abc123",
		Size:     42,
		Status:   metadata.StatusActive,
		Chunks: []metadata.ChunkRef{
			{Index: 0, Size: 42, Repo: "storage-0001", ID: "abc123_0000.chunk"},
		},
	}
	if err := store.Commit(ctx, snap); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	store.Close()

	// A second store sees exactly what was committed.
	reloaded, err := New(host, metadataRepo, t.TempDir()).Load(ctx)
	if err != nil {
		t.Fatalf("Load() after commit failed: %v", err)
	}
	if reloaded.NextRepoID != 2 {
		t.Errorf("NextRepoID = %d, want 2", reloaded.NextRepoID)
	}
	if got := reloaded.Repos["storage-0001"]; got == nil || got.CommittedBytes != 42 {
		t.Errorf("repo entry not round-tripped: %+v", got)
	}
	f := reloaded.Lookup("report.pdf")
	if f == nil || len(f.Chunks) != 1 || f.Chunks[0].ID != "abc123_0000.chunk" {
		t.Errorf("file entry not round-tripped: %+v", f)
	}
}

func TestCommit_FailedPushLeavesPreviousSnapshot(t *testing.T) {
	host := newBackend(t)
	ctx := context.Background()

	store := New(host, metadataRepo, t.TempDir())
	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	snap.AddRepo("storage-0001")
	if err := store.Commit(ctx, snap); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	store.Close()

	host.PushErr = func(name string, attempt int) error {
		return errors.New("connection reset by peer")
	}

	second := New(host, metadataRepo, t.TempDir())
	snap2, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	snap2.AddRepo("storage-0002")
	if err := second.Commit(ctx, snap2); !errors.Is(err, metadata.ErrUnavailable) {
		t.Fatalf("Commit() error = %v, want ErrUnavailable", err)
	}
	second.Close()
	host.PushErr = nil

	reloaded, err := New(host, metadataRepo, t.TempDir()).Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(reloaded.RepoOrder) != 1 || reloaded.RepoOrder[0] != "storage-0001" {
		t.Errorf("RepoOrder = %v, want the pre-failure registry", reloaded.RepoOrder)
	}
}
