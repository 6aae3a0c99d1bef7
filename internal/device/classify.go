package device

import (
	"fmt"
	"path"
	"strings"
)

// Kind classifies a directory entry.
type Kind int

const (
	KindUnknown Kind = iota
	KindFile
	KindDirectory
	KindSymlink
)

var kindNames = [...]string{
	KindUnknown:   "unknown",
	KindFile:      "file",
	KindDirectory: "directory",
	KindSymlink:   "symlink",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindSet is a bitmask of entry kinds accepted by a listing.
type KindSet uint8

const (
	Files KindSet = 1 << iota
	Directories
	Symlinks

	// Unknowns admits entries whose classification failed, for callers
	// that account for what they skip. It is not part of AllKinds.
	Unknowns

	AllKinds = Files | Directories | Symlinks
)

// Has reports whether k is in the set.
func (s KindSet) Has(k Kind) bool {
	switch k {
	case KindFile:
		return s&Files != 0
	case KindDirectory:
		return s&Directories != 0
	case KindSymlink:
		return s&Symlinks != 0
	case KindUnknown:
		return s&Unknowns != 0
	default:
		return false
	}
}

// Entry is a single classified directory entry. Name is relative to the
// listed directory.
type Entry struct {
	Name string
	Kind Kind
}

// ListFilter controls which entries List returns.
type ListFilter struct {
	IncludeHidden bool // keep names starting with "."
	IncludeDot    bool // keep "." and ".."
	Kinds         KindSet
}

// Unfiltered reports whether the filter accepts everything, which lets List
// skip the per-entry metadata round trips.
func (f ListFilter) Unfiltered() bool {
	return f.IncludeHidden && f.IncludeDot && f.Kinds == AllKinds
}

// Classify determines the kind of the entry at path from its st_ifmt
// metadata. Missing metadata or an unrecognized format token yields
// KindUnknown; classification never fails.
func Classify(ch Channel, p string) Kind {
	format, ok := ch.GetMetadata(p, MetaFormat)
	if !ok {
		return KindUnknown
	}
	switch format {
	case FormatRegular:
		return KindFile
	case FormatDirectory:
		return KindDirectory
	case FormatSymlink:
		return KindSymlink
	default:
		return KindUnknown
	}
}

// List returns the entries of dir that pass the filter, in device order.
//
// An unfiltered listing is returned as KindUnknown placeholders straight
// from the raw names: each classification costs one metadata round trip,
// and callers that only count children don't need kinds at all.
func List(ch Channel, dir string, f ListFilter) ([]Entry, error) {
	names, err := ch.ListDirectory(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	if f.Unfiltered() {
		entries := make([]Entry, len(names))
		for i, name := range names {
			entries[i] = Entry{Name: name}
		}
		return entries, nil
	}

	var entries []Entry
	for _, name := range names {
		if name == "." || name == ".." {
			if !f.IncludeDot {
				continue
			}
		} else if !f.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		kind := Classify(ch, path.Join(dir, name))
		if !f.Kinds.Has(kind) {
			continue
		}
		entries = append(entries, Entry{Name: name, Kind: kind})
	}
	return entries, nil
}
