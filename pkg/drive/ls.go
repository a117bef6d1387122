package drive

import (
	"context"
	"sort"

	"github.com/dustin/go-humanize"
)

// Entry is one logical file as reported by List.
type Entry struct {
	Name      string
	Size      int64
	SizeHuman string
	Checksum  string
	Chunks    int
}

// List returns the active logical files sorted by name. Only committed state
// is reported: an upload that crashed before its snapshot commit is invisible
// here.
func (d *Drive) List(ctx context.Context) ([]Entry, error) {
	snap, err := d.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(snap.Files))
	for name := range snap.Files {
		f := snap.Lookup(name)
		if f == nil {
			continue
		}
		entries = append(entries, Entry{
			Name:      f.Name,
			Size:      f.Size,
			SizeHuman: humanize.Bytes(uint64(f.Size)),
			Checksum:  f.Checksum,
			Chunks:    len(f.Chunks),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
