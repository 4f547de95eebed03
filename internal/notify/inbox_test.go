package notify

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInboxObserve(t *testing.T) {
	t.Run("first observation is new", func(t *testing.T) {
		inbox := NewInbox(10)
		assert.True(t, inbox.Observe("msg-1"))
	})

	t.Run("replay of same id is a no-op", func(t *testing.T) {
		inbox := NewInbox(10)
		assert.True(t, inbox.Observe("msg-1"))
		assert.False(t, inbox.Observe("msg-1"))
		assert.False(t, inbox.Observe("msg-1"))
	})

	t.Run("distinct ids are independent", func(t *testing.T) {
		inbox := NewInbox(10)
		assert.True(t, inbox.Observe("msg-1"))
		assert.True(t, inbox.Observe("msg-2"))
		assert.Equal(t, 2, inbox.Len())
	})
}

func TestInboxEviction(t *testing.T) {
	t.Run("evicts oldest id at capacity", func(t *testing.T) {
		inbox := NewInbox(3)
		inbox.Observe("a")
		inbox.Observe("b")
		inbox.Observe("c")
		inbox.Observe("d")

		assert.Equal(t, 3, inbox.Len())
		assert.False(t, inbox.Observe("b"))
		assert.False(t, inbox.Observe("d"))
	})

	t.Run("evicted id counts as new again", func(t *testing.T) {
		inbox := NewInbox(2)
		inbox.Observe("a")
		inbox.Observe("b")
		inbox.Observe("c")

		assert.True(t, inbox.Observe("a"))
	})

	t.Run("zero capacity is clamped", func(t *testing.T) {
		inbox := NewInbox(0)
		assert.True(t, inbox.Observe("a"))
		assert.Equal(t, 1, inbox.Len())
	})
}

func TestInboxConcurrent(t *testing.T) {
	t.Run("exactly one observer wins per id", func(t *testing.T) {
		inbox := NewInbox(1024)

		var wg sync.WaitGroup
		wins := make(chan string, 1000)
		for g := 0; g < 10; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					id := fmt.Sprintf("msg-%d", i)
					if inbox.Observe(id) {
						wins <- id
					}
				}
			}()
		}
		wg.Wait()
		close(wins)

		counts := make(map[string]int)
		for id := range wins {
			counts[id]++
		}
		assert.Len(t, counts, 100)
		for id, n := range counts {
			assert.Equal(t, 1, n, "id %s observed as new more than once", id)
		}
	})
}
