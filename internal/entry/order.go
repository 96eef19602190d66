package entry

import (
	"sort"
	"strings"
)

// Disposition classifies one source entry against one destination entry.
type Disposition int

const (
	// MissingAtDest means src sorts before dst: the item is absent from the destination.
	MissingAtDest Disposition = iota + 1
	// StaleAtDest means the paths match and src is strictly newer.
	StaleAtDest
	// InSync means the paths match and both are directories or the timestamps are equal.
	InSync
	// DestNewer means the paths match and dst is strictly newer. It is never copied.
	DestNewer
	// ExtraAtDest means dst sorts before src: the item only exists at the destination.
	ExtraAtDest
)

func (d Disposition) String() string {
	switch d {
	case MissingAtDest:
		return "missing"
	case StaleAtDest:
		return "stale"
	case InSync:
		return "in-sync"
	case DestNewer:
		return "dest-newer"
	case ExtraAtDest:
		return "extra"
	default:
		return "unknown"
	}
}

// Order is the path ordering shared by sorting and comparison. Both trees
// must be sorted with the same Order that is later used to compare them.
type Order struct {
	// FoldCase compares relative paths case-insensitively.
	FoldCase bool
}

// PlatformOrder returns the ordering conventionally used on goos: windows and
// darwin fold case, everything else compares bytes.
func PlatformOrder(goos string) Order {
	switch goos {
	case "windows", "darwin":
		return Order{FoldCase: true}
	default:
		return Order{}
	}
}

// Key returns the comparison key for a path.
func (o Order) Key(path string) string {
	if o.FoldCase {
		return strings.ToLower(path)
	}
	return path
}

// ComparePaths orders two relative paths, returning -1, 0 or +1.
func (o Order) ComparePaths(a, b string) int {
	return strings.Compare(o.Key(a), o.Key(b))
}

// Less reports whether a sorts before b.
func (o Order) Less(a, b Entry) bool {
	if c := o.ComparePaths(a.RelativePath, b.RelativePath); c != 0 {
		return c < 0
	}
	// Keys collide only when folding case; keep the result deterministic.
	return a.RelativePath < b.RelativePath
}

// Sort orders seq in place by relative path.
func (o Order) Sort(seq Sequence) {
	sort.SliceStable(seq, func(i, j int) bool {
		return o.Less(seq[i], seq[j])
	})
}

// IsSorted reports whether seq is ordered by relative path.
func (o Order) IsSorted(seq Sequence) bool {
	return sort.SliceIsSorted(seq, func(i, j int) bool {
		return o.Less(seq[i], seq[j])
	})
}

// Compare classifies src (from the source tree) against dst (from the
// destination tree). Directories with matching paths are always in sync;
// files are compared by modification time with no tolerance window.
func (o Order) Compare(src, dst Entry) Disposition {
	switch c := o.ComparePaths(src.RelativePath, dst.RelativePath); {
	case c < 0:
		return MissingAtDest
	case c > 0:
		return ExtraAtDest
	}

	switch {
	case src.IsDir && dst.IsDir:
		return InSync
	case src.ModTime.Equal(dst.ModTime):
		return InSync
	case src.ModTime.After(dst.ModTime):
		return StaleAtDest
	default:
		return DestNewer
	}
}
