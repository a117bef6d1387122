// Package chunk implements the codec that splits a file's byte stream into
// fixed-size chunks and reassembles them.
//
// The codec is pure: it operates over in-memory buffers and performs no I/O
// (FileChecksum is the single exception, reading a local file to hash it).
// Chunk boundaries are deterministic, so the same input always produces the
// same chunk payloads and the same chunk identifiers.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// ErrIncompleteSequence indicates that a chunk set handed to Join is not
// contiguous from index 0. This means the metadata and the retrieved chunks
// disagree and the file cannot be reassembled.
var ErrIncompleteSequence = errors.New("incomplete chunk sequence")

// Piece is one chunk of a file's byte stream, tagged with its sequence index.
type Piece struct {
	// Index is the 0-based position of this chunk in the original stream.
	Index int

	// Data is the chunk payload.
	Data []byte
}

// Split divides data into chunks of at most size bytes.
//
// Chunk i covers bytes [i*size, min((i+1)*size, len(data))), so every chunk
// except possibly the last has exactly size bytes. The returned slices alias
// the input buffer; callers that mutate data must copy first.
//
// size must be positive. Empty input yields no chunks.
func Split(data []byte, size int) [][]byte {
	if size <= 0 || len(data) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}

// Join reassembles pieces into the original byte stream.
//
// Pieces may arrive in any order; they are sorted by index before
// concatenation. The set must be contiguous from index 0 with no gaps and no
// duplicates, otherwise Join fails with ErrIncompleteSequence.
func Join(pieces []Piece) ([]byte, error) {
	if len(pieces) == 0 {
		return nil, nil
	}

	sorted := make([]Piece, len(pieces))
	copy(sorted, pieces)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var total int
	for i, p := range sorted {
		if p.Index != i {
			return nil, fmt.Errorf("chunk %d missing (got index %d): %w", i, p.Index, ErrIncompleteSequence)
		}
		total += len(p.Data)
	}

	out := make([]byte, 0, total)
	for _, p := range sorted {
		out = append(out, p.Data...)
	}
	return out, nil
}

// Plan returns the chunk sizes for a file of fileSize bytes without reading
// it. This lets the orchestrator assign every chunk a destination repository
// before any payload leaves the local disk.
//
// The result has the same boundaries Split would produce: every entry equals
// size except possibly the last.
func Plan(fileSize int64, size int) []int64 {
	if size <= 0 || fileSize <= 0 {
		return nil
	}

	n := int((fileSize + int64(size) - 1) / int64(size))
	plan := make([]int64, 0, n)
	remaining := fileSize
	for remaining > 0 {
		c := int64(size)
		if remaining < c {
			c = remaining
		}
		plan = append(plan, c)
		remaining -= c
	}
	return plan
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileChecksum returns the hex-encoded SHA-256 digest of the file at path,
// streaming the file so arbitrarily large inputs hash in constant memory.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ID returns the deterministic object name for chunk index of the file with
// the given checksum, e.g. "ab12..ef_0003.chunk".
//
// Because the name is derived from content and position only, retrying a push
// of an already-stored chunk overwrites it with identical bytes instead of
// duplicating it.
func ID(checksum string, index int) string {
	return fmt.Sprintf("%s_%04d.chunk", checksum, index)
}
