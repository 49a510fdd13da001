package queue

import (
	"context"
	"sync"
)

// MemoryQueue implements Queue in process memory. Used by tests and by
// single-process deployments where the oracle worker runs alongside the
// scoring service.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	ids    chan string
	closed bool
}

// NewMemoryQueue creates an in-memory queue with the given backlog capacity.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &MemoryQueue{
		jobs: make(map[string]*Job),
		ids:  make(chan string, capacity),
	}
}

func (q *MemoryQueue) Push(ctx context.Context, job *Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	job.Status = StatusPending
	stored := *job
	q.jobs[job.ID] = &stored
	q.mu.Unlock()

	select {
	case q.ids <- job.ID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (*Job, error) {
	select {
	case id, ok := <-q.ids:
		if !ok {
			return nil, ErrQueueClosed
		}
		return q.Get(ctx, id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Update(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	stored := *job
	q.jobs[job.ID] = &stored
	return nil
}

func (q *MemoryQueue) Get(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ids)
	return nil
}
