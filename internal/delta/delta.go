// Package delta computes which source entries must be copied to bring a
// destination tree up to date.
package delta

import (
	"github.com/schaermu/tranquil/internal/entry"
)

// Summary describes a plan in numbers, suitable for asking the user before
// anything is copied.
type Summary struct {
	Items       int   `json:"items"`       // entries queued for copying
	Files       int   `json:"files"`       // queued files
	Directories int   `json:"directories"` // queued directories
	Bytes       int64 `json:"bytes"`       // total size of queued files

	Missing   int `json:"missing"`    // queued because they are absent from the destination
	Stale     int `json:"stale"`      // queued because the destination copy is older
	InSync    int `json:"in_sync"`    // matched and up to date
	DestNewer int `json:"dest_newer"` // matched but newer at the destination, left alone
	Extra     int `json:"extra"`      // only present at the destination, left alone
}

// Plan is the outcome of comparing two trees.
type Plan struct {
	Queue   *Queue
	Summary Summary
	// DestNewer lists source entries whose destination copy was modified
	// more recently. They are reported, never copied.
	DestNewer []entry.Entry
}

// Required reports whether anything needs to be copied.
func (p *Plan) Required() bool {
	return p.Queue.Len() > 0
}

// Compute merges two sequences sorted by order and returns the source entries
// that are missing or stale at the destination, in source order. Because a
// directory sorts before everything below it, a directory is always queued
// ahead of its descendants.
func Compute(src, dst entry.Sequence, order entry.Order) *Plan {
	plan := &Plan{Queue: NewQueue(len(src))}

	i, j := 0, 0
	for i < len(src) && j < len(dst) {
		d := order.Compare(src[i], dst[j])
		switch d {
		case entry.MissingAtDest:
			plan.enqueue(src[i], d)
			i++
		case entry.StaleAtDest:
			plan.enqueue(src[i], d)
			i++
			j++
		case entry.InSync:
			plan.Summary.InSync++
			i++
			j++
		case entry.DestNewer:
			plan.Summary.DestNewer++
			plan.DestNewer = append(plan.DestNewer, src[i])
			i++
			j++
		case entry.ExtraAtDest:
			plan.Summary.Extra++
			j++
		}
	}

	// Nothing left to compare against: the rest of the source is missing.
	for ; i < len(src); i++ {
		plan.enqueue(src[i], entry.MissingAtDest)
	}
	// Remaining destination entries are extras and are never removed.
	plan.Summary.Extra += len(dst) - j

	return plan
}

func (p *Plan) enqueue(e entry.Entry, d entry.Disposition) {
	p.Queue.Push(Item{Entry: e, Disposition: d})

	p.Summary.Items++
	if e.IsDir {
		p.Summary.Directories++
	} else {
		p.Summary.Files++
		p.Summary.Bytes += e.Size
	}
	if d == entry.StaleAtDest {
		p.Summary.Stale++
	} else {
		p.Summary.Missing++
	}
}
