package chunk

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestSplit_Boundaries(t *testing.T) {
	tests := []struct {
		name      string
		dataLen   int
		size      int
		wantCount int
		wantLast  int
	}{
		{name: "exact multiple", dataLen: 1024, size: 256, wantCount: 4, wantLast: 256},
		{name: "short last chunk", dataLen: 1000, size: 256, wantCount: 4, wantLast: 232},
		{name: "single chunk", dataLen: 10, size: 256, wantCount: 1, wantLast: 10},
		{name: "one byte chunks", dataLen: 5, size: 1, wantCount: 5, wantLast: 1},
		{name: "empty input", dataLen: 0, size: 256, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.dataLen)
			chunks := Split(data, tt.size)
			if len(chunks) != tt.wantCount {
				t.Fatalf("Split() produced %d chunks, want %d", len(chunks), tt.wantCount)
			}
			if tt.wantCount > 0 {
				if got := len(chunks[len(chunks)-1]); got != tt.wantLast {
					t.Errorf("last chunk is %d bytes, want %d", got, tt.wantLast)
				}
			}
			for i := 0; i < len(chunks)-1; i++ {
				if len(chunks[i]) != tt.size {
					t.Errorf("chunk %d is %d bytes, want %d", i, len(chunks[i]), tt.size)
				}
			}
		})
	}
}

func TestJoin_InverseOfSplit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sizes := []int{1, 7, 256, 4096}
	lengths := []int{0, 1, 255, 256, 257, 10000}

	for _, size := range sizes {
		for _, n := range lengths {
			data := make([]byte, n)
			rng.Read(data)

			chunks := Split(data, size)
			pieces := make([]Piece, len(chunks))
			for i, c := range chunks {
				pieces[i] = Piece{Index: i, Data: c}
			}

			got, err := Join(pieces)
			if err != nil {
				t.Fatalf("Join(Split(%d bytes, %d)) failed: %v", n, size, err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("Join(Split(%d bytes, %d)) did not reproduce input", n, size)
			}
		}
	}
}

func TestJoin_OutOfOrder(t *testing.T) {
	pieces := []Piece{
		{Index: 2, Data: []byte("cc")},
		{Index: 0, Data: []byte("aa")},
		{Index: 1, Data: []byte("bb")},
	}

	got, err := Join(pieces)
	if err != nil {
		t.Fatalf("Join() failed: %v", err)
	}
	if string(got) != "aabbcc" {
		t.Fatalf("Join() = %q, want %q", got, "aabbcc")
	}
}

func TestJoin_IncompleteSequence(t *testing.T) {
	tests := []struct {
		name   string
		pieces []Piece
	}{
		{
			name: "gap in sequence",
			pieces: []Piece{
				{Index: 0, Data: []byte("aa")},
				{Index: 2, Data: []byte("cc")},
			},
		},
		{
			name: "missing first chunk",
			pieces: []Piece{
				{Index: 1, Data: []byte("bb")},
				{Index: 2, Data: []byte("cc")},
			},
		},
		{
			name: "duplicate index",
			pieces: []Piece{
				{Index: 0, Data: []byte("aa")},
				{Index: 0, Data: []byte("aa")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Join(tt.pieces)
			if !errors.Is(err, ErrIncompleteSequence) {
				t.Fatalf("Join() error = %v, want ErrIncompleteSequence", err)
			}
		})
	}
}

func TestPlan_MatchesSplit(t *testing.T) {
	data := make([]byte, 10000)
	size := 4096

	chunks := Split(data, size)
	plan := Plan(int64(len(data)), size)

	if len(plan) != len(chunks) {
		t.Fatalf("Plan() has %d entries, Split() produced %d chunks", len(plan), len(chunks))
	}
	for i := range plan {
		if plan[i] != int64(len(chunks[i])) {
			t.Errorf("plan[%d] = %d, chunk %d is %d bytes", i, plan[i], i, len(chunks[i]))
		}
	}

	var total int64
	for _, c := range plan {
		total += c
	}
	if total != int64(len(data)) {
		t.Errorf("plan sums to %d bytes, want %d", total, len(data))
	}
}

func TestChecksum_Deterministic(t *testing.T) {
	a := Checksum([]byte("hello"))
	b := Checksum([]byte("hello"))
	c := Checksum([]byte("world"))

	if a != b {
		t.Error("same input produced different checksums")
	}
	if a == c {
		t.Error("different inputs produced the same checksum")
	}
	if len(a) != 64 {
		t.Errorf("checksum is %d hex chars, want 64", len(a))
	}
}

func TestFileChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	payload := []byte("some file content for hashing")
	if err := os.WriteFile(path, payload, 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	got, err := FileChecksum(path)
	if err != nil {
		t.Fatalf("FileChecksum() failed: %v", err)
	}
	if want := Checksum(payload); got != want {
		t.Errorf("FileChecksum() = %s, want %s", got, want)
	}

	if _, err := FileChecksum(filepath.Join(dir, "missing")); err == nil {
		t.Error("FileChecksum() on missing file succeeded, want error")
	}
}

func TestID_Format(t *testing.T) {
	got := ID("abcd", 3)
	if got != "abcd_0003.chunk" {
		t.Errorf("ID() = %q, want %q", got, "abcd_0003.chunk")
	}

	// Indexes beyond 4 digits must stay unique, not truncate.
	wide := ID("abcd", 123456)
	if wide != "abcd_123456.chunk" {
		t.Errorf("ID() = %q, want %q", wide, "abcd_123456.chunk")
	}
}
