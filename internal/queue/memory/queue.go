// Package memory provides the in-process analysis queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pagescope/pagescope/internal/analysis"
)

// Queue is a bounded in-memory queue with context-aware operations. A job id
// may only be in flight once: a second Enqueue before Release returns
// analysis.ErrDuplicateJob.
type Queue struct {
	ch chan analysis.QueueItem

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch:      make(chan analysis.QueueItem, capacity),
		pending: make(map[string]struct{}),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item analysis.QueueItem) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("queue closed")
	}
	if _, dup := q.pending[item.JobID]; dup {
		q.mu.Unlock()
		return analysis.ErrDuplicateJob
	}
	q.pending[item.JobID] = struct{}{}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		q.Release(item.JobID)
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation. The job id
// stays reserved until Release is called.
func (q *Queue) Dequeue(ctx context.Context) (analysis.QueueItem, error) {
	select {
	case <-ctx.Done():
		return analysis.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return analysis.QueueItem{}, errors.New("queue closed")
		}
		return item, nil
	}
}

// Release frees the job id so it can be enqueued again.
func (q *Queue) Release(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, jobID)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

var _ analysis.Queue = (*Queue)(nil)
