package delta

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/tranquil/internal/entry"
)

func file(rel string, mtime int64, size int64) entry.Entry {
	return entry.Entry{Name: filepath.Base(rel), RelativePath: rel, ModTime: time.Unix(mtime, 0), Size: size}
}

func dir(rel string) entry.Entry {
	return entry.Entry{Name: filepath.Base(rel), RelativePath: rel, ModTime: time.Unix(1, 0), IsDir: true}
}

func queued(p *Plan) []string {
	var out []string
	for _, it := range p.Queue.Items() {
		out = append(out, it.Entry.RelativePath)
	}
	return out
}

func TestCompute_Scenarios(t *testing.T) {
	order := entry.Order{}

	t.Run("A missing at destination", func(t *testing.T) {
		plan := Compute(entry.Sequence{file("a.txt", 100, 5)}, nil, order)

		items := plan.Queue.Items()
		require.Len(t, items, 1)
		assert.Equal(t, "a.txt", items[0].Entry.RelativePath)
		assert.Equal(t, entry.MissingAtDest, items[0].Disposition)
		assert.Equal(t, 1, plan.Summary.Missing)
	})

	t.Run("B stale at destination", func(t *testing.T) {
		plan := Compute(entry.Sequence{file("a.txt", 200, 5)}, entry.Sequence{file("a.txt", 100, 5)}, order)

		items := plan.Queue.Items()
		require.Len(t, items, 1)
		assert.Equal(t, entry.StaleAtDest, items[0].Disposition)
		assert.Equal(t, 1, plan.Summary.Stale)
	})

	t.Run("C destination newer", func(t *testing.T) {
		plan := Compute(entry.Sequence{file("a.txt", 100, 5)}, entry.Sequence{file("a.txt", 200, 5)}, order)

		assert.Zero(t, plan.Queue.Len())
		assert.False(t, plan.Required())
		assert.Equal(t, 1, plan.Summary.DestNewer)
		require.Len(t, plan.DestNewer, 1)
		assert.Equal(t, "a.txt", plan.DestNewer[0].RelativePath)
	})

	t.Run("D extra at destination", func(t *testing.T) {
		src := entry.Sequence{file("a.txt", 100, 5)}
		dst := entry.Sequence{file("a.txt", 100, 5), file("extra.txt", 100, 5)}
		plan := Compute(src, dst, order)

		assert.Empty(t, queued(plan))
		assert.Equal(t, 1, plan.Summary.Extra)
		assert.Equal(t, 1, plan.Summary.InSync)
	})
}

func TestCompute_Merge(t *testing.T) {
	src := entry.Sequence{
		dir("a"),
		file("a/new.txt", 100, 10),
		file("a/same.txt", 100, 20),
		file("b.txt", 300, 30),
		file("c.txt", 100, 40),
		dir("d"),
		file("d/e.txt", 100, 50),
	}
	dst := entry.Sequence{
		dir("a"),
		file("a/old-only.txt", 100, 1),
		file("a/same.txt", 100, 20),
		file("b.txt", 200, 30),
		file("c.txt", 500, 40),
	}

	plan := Compute(src, dst, entry.Order{})

	assert.Equal(t, []string{"a/new.txt", "b.txt", "d", "d/e.txt"}, queued(plan))
	assert.Equal(t, Summary{
		Items:       4,
		Files:       3,
		Directories: 1,
		Bytes:       90,
		Missing:     3,
		Stale:       1,
		InSync:      2,
		DestNewer:   1,
		Extra:       1,
	}, plan.Summary)
}

func TestCompute_DestinationTailIgnored(t *testing.T) {
	src := entry.Sequence{file("a.txt", 1, 1)}
	dst := entry.Sequence{file("a.txt", 1, 1), file("x.txt", 1, 1), file("y.txt", 1, 1)}

	plan := Compute(src, dst, entry.Order{})
	assert.Zero(t, plan.Queue.Len())
	assert.Equal(t, 2, plan.Summary.Extra)
}

func TestCompute_FoldCase(t *testing.T) {
	src := entry.Sequence{file("Photo.JPG", 100, 1)}
	dst := entry.Sequence{file("photo.jpg", 100, 1)}

	assert.Zero(t, Compute(src, dst, entry.Order{FoldCase: true}).Queue.Len())
	assert.Equal(t, 1, Compute(src, dst, entry.Order{}).Queue.Len())
}

func TestCompute_EmptyInputs(t *testing.T) {
	plan := Compute(nil, nil, entry.Order{})
	assert.Zero(t, plan.Queue.Len())
	assert.Equal(t, Summary{}, plan.Summary)
}

// randomTree builds a sorted sequence with nested directories and files.
func randomTree(rng *rand.Rand, order entry.Order) entry.Sequence {
	var seq entry.Sequence
	for d := 0; d < 1+rng.Intn(4); d++ {
		dirName := fmt.Sprintf("dir%d", rng.Intn(6))
		seq = append(seq, dir(dirName))
		for f := 0; f < rng.Intn(5); f++ {
			seq = append(seq, file(dirName+"/f"+fmt.Sprint(rng.Intn(8)), int64(rng.Intn(3)), 1))
		}
		seq = append(seq, file(fmt.Sprintf("top%d.txt", rng.Intn(6)), int64(rng.Intn(3)), 1))
	}

	// Drop duplicates, keeping the first occurrence.
	seen := map[string]bool{}
	unique := seq[:0]
	for _, e := range seq {
		if !seen[e.RelativePath] {
			seen[e.RelativePath] = true
			unique = append(unique, e)
		}
	}
	order.Sort(unique)
	return unique
}

func TestCompute_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	order := entry.Order{}

	for n := 0; n < 100; n++ {
		src := randomTree(rng, order)
		dst := randomTree(rng, order)

		first := Compute(src, dst, order)
		second := Compute(src, dst, order)
		assert.Equal(t, first.Queue.Items(), second.Queue.Items(), "deterministic")

		items := first.Queue.Items()
		position := map[string]int{}
		for i, it := range items {
			position[it.Entry.RelativePath] = i
		}

		dstByPath := map[string]entry.Entry{}
		for _, e := range dst {
			dstByPath[e.RelativePath] = e
		}

		for i, it := range items {
			// Parents are queued before their children.
			if idx := strings.LastIndex(it.Entry.RelativePath, "/"); idx > 0 {
				if p, ok := position[it.Entry.RelativePath[:idx]]; ok {
					assert.Less(t, p, i)
				}
			}
			// A newer destination file is never queued.
			if d, ok := dstByPath[it.Entry.RelativePath]; ok && !it.Entry.IsDir {
				assert.False(t, d.ModTime.After(it.Entry.ModTime))
			}
		}

		// Simulate a successful copy: the destination now holds every queued
		// entry, so a second comparison must find nothing to do.
		merged := append(entry.Sequence(nil), dst...)
		for _, it := range items {
			if d, ok := dstByPath[it.Entry.RelativePath]; ok {
				for k := range merged {
					if merged[k].RelativePath == d.RelativePath {
						merged[k] = it.Entry
					}
				}
				continue
			}
			merged = append(merged, it.Entry)
		}
		order.Sort(merged)
		assert.Zero(t, Compute(src, merged, order).Queue.Len(), "idempotent")
	}
}
