package notify

import "sync"

// Inbox is the delivery-agnostic dedup point both the push and poll paths
// feed. Whichever path produces a message first wins; replays of the same id
// are no-ops. The seen-set is bounded: once the cap is hit the oldest ids
// are evicted FIFO so a long-lived poll loop cannot grow memory unbounded.
type Inbox struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	cap   int
}

func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &Inbox{
		seen: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

// Observe records an id and reports whether it is new.
func (i *Inbox) Observe(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.seen[id]; ok {
		return false
	}

	if len(i.order) >= i.cap {
		oldest := i.order[0]
		i.order = i.order[1:]
		delete(i.seen, oldest)
	}

	i.seen[id] = struct{}{}
	i.order = append(i.order, id)
	return true
}

// Len returns the current size of the seen-set.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.seen)
}
