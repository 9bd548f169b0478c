package music

import (
	"math/rand"
	"sync"
)

// Queue is the in-memory FIFO pending list for one guild. All operations
// are atomic with respect to each other; order is preserved except under
// explicit Shuffle or Clear.
type Queue struct {
	mu    sync.Mutex
	items []Track
	max   int
}

func NewQueue(maxSize int) *Queue {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Queue{max: maxSize}
}

func (q *Queue) Append(t Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.max {
		return ErrQueueFull
	}
	q.items = append(q.items, t)
	return nil
}

func (q *Queue) PopFront() (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Track{}, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// List returns a copy of the pending tracks in play order.
func (q *Queue) List() []Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Track, len(q.items))
	copy(out, q.items)
	return out
}
