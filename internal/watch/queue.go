package watch

import (
	"context"
	"sync"
	"time"
)

// ProcessFunc handles one queued path.
type ProcessFunc func(ctx context.Context, path string)

// Queue runs queued paths one at a time, keeping at least delay between the
// end of one item and the start of the next. A path already waiting in the
// queue is not added twice.
type Queue struct {
	ch      chan string
	delay   time.Duration
	process ProcessFunc

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewQueue creates a queue holding at most size waiting paths.
func NewQueue(size int, delay time.Duration, process ProcessFunc) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		ch:      make(chan string, size),
		delay:   delay,
		process: process,
		pending: make(map[string]struct{}),
	}
}

// Enqueue adds path and reports whether it was accepted. Duplicates and
// paths arriving while the queue is full are dropped.
func (q *Queue) Enqueue(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[path]; ok {
		return false
	}
	select {
	case q.ch <- path:
		q.pending[path] = struct{}{}
		return true
	default:
		return false
	}
}

// Len returns the number of waiting paths.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run processes paths until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-q.ch:
			if wait := q.delay - time.Since(last); !last.IsZero() && wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil
				case <-t.C:
				}
			}

			q.mu.Lock()
			delete(q.pending, p)
			q.mu.Unlock()

			q.process(ctx, p)
			last = time.Now()
		}
	}
}
