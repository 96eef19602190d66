package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(0)
	for _, name := range []string{"a", "b", "c"} {
		q.Push(Item{Entry: file(name, 1, 1)})
	}

	assert.Equal(t, 3, q.Len())
	assert.Len(t, q.Items(), 3)

	front, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, "a", front.Entry.RelativePath)
	assert.Equal(t, 3, q.Len(), "peek does not consume")

	var got []string
	for {
		it, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, it.Entry.RelativePath)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Items())

	_, ok = q.Peek()
	assert.False(t, ok)
}

func TestQueue_ReuseAfterDrain(t *testing.T) {
	q := NewQueue(1)
	q.Push(Item{Entry: file("a", 1, 1)})
	_, _ = q.Pop()

	q.Push(Item{Entry: file("b", 1, 1)})
	it, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "b", it.Entry.RelativePath)
}

func TestQueue_ItemsIsACopy(t *testing.T) {
	q := NewQueue(1)
	q.Push(Item{Entry: file("a", 1, 1)})

	items := q.Items()
	items[0].Entry.RelativePath = "changed"

	it, _ := q.Pop()
	assert.Equal(t, "a", it.Entry.RelativePath)
}
