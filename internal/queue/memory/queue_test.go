package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagescope/pagescope/internal/analysis"
)

func TestEnqueueDequeue(t *testing.T) {
	q := NewQueue(2)
	ctx := context.Background()

	item := analysis.QueueItem{JobID: "job-1", URL: "https://example.com"}
	require.NoError(t, q.Enqueue(ctx, item))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, item, got)
}

func TestEnqueueRejectsDuplicateUntilReleased(t *testing.T) {
	q := NewQueue(2)
	ctx := context.Background()

	item := analysis.QueueItem{JobID: "job-1"}
	require.NoError(t, q.Enqueue(ctx, item))
	require.ErrorIs(t, q.Enqueue(ctx, item), analysis.ErrDuplicateJob)

	_, err := q.Dequeue(ctx)
	require.NoError(t, err)
	// Still reserved while the job is being processed.
	require.ErrorIs(t, q.Enqueue(ctx, item), analysis.ErrDuplicateJob)

	q.Release("job-1")
	require.NoError(t, q.Enqueue(ctx, item))
}

func TestEnqueueRespectsContextWhenFull(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, analysis.QueueItem{JobID: "job-1"}))

	timed, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(timed, analysis.QueueItem{JobID: "job-2"})
	require.Error(t, err)

	// A canceled enqueue must not leave the id reserved.
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, analysis.QueueItem{JobID: "job-2"}))
}

func TestDequeueRespectsContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
}

func TestCloseUnblocksDequeue(t *testing.T) {
	q := NewQueue(1)
	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		done <- err
	}()

	q.Close()
	require.Eventually(t, func() bool {
		select {
		case err := <-done:
			return err != nil
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	require.Error(t, q.Enqueue(context.Background(), analysis.QueueItem{JobID: "job-1"}))
}
