// Package metadata defines the authoritative mapping from logical files to
// chunk locations, and the store that persists it.
//
// The whole drive state lives in a single Snapshot document. Every operation
// loads the full snapshot, mutates a private copy in memory, and either
// commits the whole updated document or leaves the previous one authoritative.
// There are no partial or incremental commits: the snapshot is the single
// source of truth and the unit of consistency.
package metadata

// FileStatus is the lifecycle state of a logical file.
//
// Only StatusActive is written today. StatusDeleted is reserved so a future
// tombstone-based delete can be added without changing the chunk-addressing
// scheme or breaking older snapshots.
type FileStatus string

const (
	StatusActive  FileStatus = "ACTIVE"
	StatusDeleted FileStatus = "DELETED"
)

// RepoStatus is the capacity state of a storage repository.
type RepoStatus string

const (
	// RepoOpen means the repository may receive new chunks.
	RepoOpen RepoStatus = "OPEN"

	// RepoFull means the repository is closed to new chunks regardless of
	// remaining headroom. Existing chunks stay readable.
	RepoFull RepoStatus = "FULL"
)

// SnapshotVersion is the current snapshot format version. A snapshot whose
// major version differs is rejected for mutating operations.
const SnapshotVersion = "1.0"

// ChunkRef locates one chunk of a logical file.
type ChunkRef struct {
	// Index is the 0-based position of the chunk in the file. Indexes are
	// contiguous with no gaps.
	Index int `json:"index"`

	// Size is the chunk payload size in bytes. At most the configured chunk
	// size; only the last chunk of a file may be smaller.
	Size int64 `json:"size"`

	// Repo is the name of the storage repository holding the chunk.
	Repo string `json:"repo"`

	// ID is the chunk's object name inside the repository, derived from the
	// file checksum and the index.
	ID string `json:"id"`
}

// File is a user-visible named entity. Concatenating its chunk payloads in
// index order reproduces the original byte stream exactly.
type File struct {
	Name     string     `json:"name"`
	Checksum string     `json:"checksum"`
	Size     int64      `json:"size"`
	Status   FileStatus `json:"status"`
	Chunks   []ChunkRef `json:"chunks"`
}

// Repo is the registry entry for one storage repository.
//
// CommittedBytes counts only confirmed chunk payloads; in-flight reservations
// are tracked by the capacity tracker and never persisted.
type Repo struct {
	Name           string     `json:"name"`
	CommittedBytes int64      `json:"committed_bytes"`
	Status         RepoStatus `json:"status"`
}

// Snapshot is the serialized form of the full drive state: the logical file
// collection plus the storage repository registry.
type Snapshot struct {
	// Version is the snapshot format version, checked before mutating
	// operations so an older binary cannot corrupt a newer layout.
	Version string `json:"version"`

	// NextRepoID numbers the next repository to provision. Monotonic, never
	// reused even if provisioning fails.
	NextRepoID int `json:"next_repo_id"`

	// RepoOrder lists repository names in creation order. Allocation scans
	// this slice so first-fit is deterministic across runs.
	RepoOrder []string `json:"repo_order"`

	// Repos is the repository registry keyed by name.
	Repos map[string]*Repo `json:"repos"`

	// Files is the logical namespace keyed by file name.
	Files map[string]*File `json:"files"`
}

// NewSnapshot returns an empty snapshot at the current format version.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version:    SnapshotVersion,
		NextRepoID: 1,
		Repos:      make(map[string]*Repo),
		Files:      make(map[string]*File),
	}
}

// Lookup returns the active file with the given name, or nil.
func (s *Snapshot) Lookup(name string) *File {
	f, ok := s.Files[name]
	if !ok || f.Status == StatusDeleted {
		return nil
	}
	return f
}

// AddRepo registers a newly provisioned repository and returns its entry.
func (s *Snapshot) AddRepo(name string) *Repo {
	r := &Repo{Name: name, Status: RepoOpen}
	s.Repos[name] = r
	s.RepoOrder = append(s.RepoOrder, name)
	return r
}

// OpenRepos returns the OPEN repositories in creation order.
func (s *Snapshot) OpenRepos() []*Repo {
	var open []*Repo
	for _, name := range s.RepoOrder {
		if r, ok := s.Repos[name]; ok && r.Status == RepoOpen {
			open = append(open, r)
		}
	}
	return open
}

// Clone returns a deep copy of the snapshot.
//
// Orchestrators mutate a clone during an operation so that an abort leaves
// the loaded snapshot untouched.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		Version:    s.Version,
		NextRepoID: s.NextRepoID,
		RepoOrder:  append([]string(nil), s.RepoOrder...),
		Repos:      make(map[string]*Repo, len(s.Repos)),
		Files:      make(map[string]*File, len(s.Files)),
	}
	for name, r := range s.Repos {
		cr := *r
		c.Repos[name] = &cr
	}
	for name, f := range s.Files {
		cf := *f
		cf.Chunks = append([]ChunkRef(nil), f.Chunks...)
		c.Files[name] = &cf
	}
	return c
}
