package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeSnapshot serializes snap as the single pretty-printed JSON document
// stored in the metadata repository.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeSnapshot parses and validates a persisted snapshot document.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", ErrCorruptSnapshot)
	}
	if snap.Repos == nil {
		snap.Repos = make(map[string]*Repo)
	}
	if snap.Files == nil {
		snap.Files = make(map[string]*File)
	}
	if err := validateSnapshot(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// CheckWritable rejects snapshots written by an incompatible format version.
// Compatibility is major-version equality: a 1.x binary may mutate any 1.y
// snapshot but must not touch a 2.y one.
func CheckWritable(snap *Snapshot) error {
	if majorVersion(snap.Version) != majorVersion(SnapshotVersion) {
		return fmt.Errorf("snapshot version %s, binary speaks %s: %w",
			snap.Version, SnapshotVersion, ErrIncompatibleVersion)
	}
	return nil
}

func majorVersion(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}

// validateSnapshot enforces the structural invariants every persisted
// snapshot must satisfy: registry/order agreement, contiguous chunk indexes,
// and chunk references that resolve to registered repositories.
func validateSnapshot(snap *Snapshot) error {
	if snap.Version == "" {
		return fmt.Errorf("missing version: %w", ErrCorruptSnapshot)
	}

	if len(snap.RepoOrder) != len(snap.Repos) {
		return fmt.Errorf("repo order lists %d repos, registry has %d: %w",
			len(snap.RepoOrder), len(snap.Repos), ErrCorruptSnapshot)
	}
	for _, name := range snap.RepoOrder {
		if _, ok := snap.Repos[name]; !ok {
			return fmt.Errorf("repo %s in order but not in registry: %w", name, ErrCorruptSnapshot)
		}
	}

	for name, f := range snap.Files {
		if f.Name != name {
			return fmt.Errorf("file %q keyed under %q: %w", f.Name, name, ErrCorruptSnapshot)
		}
		var total int64
		for i, c := range f.Chunks {
			if c.Index != i {
				return fmt.Errorf("file %s chunk %d has index %d: %w", name, i, c.Index, ErrCorruptSnapshot)
			}
			if _, ok := snap.Repos[c.Repo]; !ok {
				return fmt.Errorf("file %s chunk %d references unknown repo %s: %w",
					name, i, c.Repo, ErrCorruptSnapshot)
			}
			total += c.Size
		}
		if total != f.Size {
			return fmt.Errorf("file %s chunks sum to %d bytes, size is %d: %w",
				name, total, f.Size, ErrCorruptSnapshot)
		}
	}

	return nil
}
