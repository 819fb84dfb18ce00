package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/metrics"
	"github.com/pagescope/pagescope/internal/progress"
	memorystore "github.com/pagescope/pagescope/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

type fakeTokens struct{}

func (fakeTokens) NewToken() (string, error) { return "tok", nil }

type fakeQueue struct {
	mu       sync.Mutex
	items    []analysis.QueueItem
	released []string
}

func (q *fakeQueue) Enqueue(_ context.Context, item analysis.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (analysis.QueueItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return analysis.QueueItem{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (q *fakeQueue) Release(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = append(q.released, jobID)
}

type countingFetcher struct {
	mu       sync.Mutex
	attempts int
	fails    int
	body     string
}

func (f *countingFetcher) Fetch(_ context.Context, url string) (analysis.CrawlResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.fails {
		return analysis.CrawlResult{}, &analysis.FetchError{URL: url, Err: errors.New("transient error")}
	}
	body := f.body
	if body == "" {
		body = "<html><body><h1>ok</h1></body></html>"
	}
	return analysis.CrawlResult{
		URL:        url,
		FinalURL:   url,
		StatusCode: 200,
		Body:       []byte(body),
		PageSize:   int64(len(body)),
		Duration:   time.Second,
	}, nil
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type fixedRuleScorer struct {
	score int
}

func (s fixedRuleScorer) Score(analysis.CrawlResult) analysis.RuleReport {
	return analysis.RuleReport{Score: s.score}
}

type fixedModelScorer struct {
	score int
}

func (s fixedModelScorer) Score(context.Context, analysis.CrawlResult) analysis.ModelReport {
	return analysis.ModelReport{Score: s.score}
}

func newHarness(t *testing.T, fetcher analysis.Fetcher, cfg Config) (*Worker, *fakeQueue, *memorystore.Store, *progress.Broker) {
	t.Helper()
	metrics.Init()
	clock := &fakeClock{now: time.Now()}
	store := memorystore.New(clock, fakeTokens{}, time.Hour)
	queue := &fakeQueue{}
	broker := progress.NewBroker(zap.NewNop())
	w := New(queue, store, broker, fetcher, nil, nil,
		fixedRuleScorer{score: 80}, fixedModelScorer{score: 60},
		clock, cfg, zap.NewNop())
	return w, queue, store, broker
}

func createJob(t *testing.T, store *memorystore.Store, id, url string) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), analysis.Job{
		ID:     id,
		URL:    url,
		Status: analysis.StatusPending,
	}))
}

func TestWorkerCompletesJob(t *testing.T) {
	fetcher := &countingFetcher{}
	w, queue, store, broker := newHarness(t, fetcher, Config{
		MaxRetries:       3,
		RetryBackoffBase: time.Millisecond,
	})
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	createJob(t, store, "job-1", "https://example.com")
	require.NoError(t, queue.Enqueue(ctx, analysis.QueueItem{JobID: "job-1", URL: "https://example.com"}))

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		job, err := store.Get(ctx, "job-1")
		return err == nil && job.Status == analysis.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	job, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, 80, *job.RuleScore)
	require.Equal(t, 60, *job.ModelScore)
	// 80*0.4 + 60*0.6 = 68
	require.Equal(t, 68, *job.TotalScore)
	require.NotNil(t, job.RuleReport)
	require.NotNil(t, job.ModelReport)

	queue.mu.Lock()
	released := append([]string(nil), queue.released...)
	queue.mu.Unlock()
	require.Contains(t, released, "job-1")
}

func TestWorkerRetriesTransientFetchErrors(t *testing.T) {
	fetcher := &countingFetcher{fails: 2}
	w, queue, store, broker := newHarness(t, fetcher, Config{
		MaxRetries:       3,
		RetryBackoffBase: time.Millisecond,
	})
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	createJob(t, store, "job-retry", "https://example.com")
	require.NoError(t, queue.Enqueue(ctx, analysis.QueueItem{JobID: "job-retry", URL: "https://example.com"}))

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		job, err := store.Get(ctx, "job-retry")
		return err == nil && job.Status == analysis.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 3, fetcher.count())
}

func TestWorkerFailsAfterRetriesExhausted(t *testing.T) {
	fetcher := &countingFetcher{fails: 10}
	w, queue, store, broker := newHarness(t, fetcher, Config{
		MaxRetries:       3,
		RetryBackoffBase: time.Millisecond,
	})
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	createJob(t, store, "job-fail", "https://example.com")

	events, cancelSub := broker.Subscribe("job-fail")
	defer cancelSub()

	require.NoError(t, queue.Enqueue(ctx, analysis.QueueItem{JobID: "job-fail", URL: "https://example.com"}))
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		job, err := store.Get(ctx, "job-fail")
		return err == nil && job.Status == analysis.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 3, fetcher.count())

	job, err := store.Get(ctx, "job-fail")
	require.NoError(t, err)
	require.Contains(t, job.ErrorText, "transient error")
	require.Nil(t, job.TotalScore)

	var sawError bool
	deadline := time.After(time.Second)
	for !sawError {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatal("stream closed without an error event")
			}
			if evt.Type == progress.TypeError {
				sawError = true
			}
		case <-deadline:
			t.Fatal("no terminal error event observed")
		}
	}
}

func TestWorkerModelFailureStillCompletes(t *testing.T) {
	// A neutral model report is indistinguishable from a healthy one at the
	// pipeline level; the job must complete either way.
	fetcher := &countingFetcher{}
	metrics.Init()
	clock := &fakeClock{now: time.Now()}
	store := memorystore.New(clock, fakeTokens{}, time.Hour)
	queue := &fakeQueue{}
	broker := progress.NewBroker(zap.NewNop())
	defer broker.Close()

	w := New(queue, store, broker, fetcher, nil, nil,
		fixedRuleScorer{score: 80}, fixedModelScorer{score: 50},
		clock, Config{MaxRetries: 1, RetryBackoffBase: time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	createJob(t, store, "job-neutral", "https://example.com")
	require.NoError(t, queue.Enqueue(ctx, analysis.QueueItem{JobID: "job-neutral", URL: "https://example.com"}))
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		job, err := store.Get(ctx, "job-neutral")
		return err == nil && job.Status == analysis.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	job, err := store.Get(ctx, "job-neutral")
	require.NoError(t, err)
	require.Equal(t, 50, *job.ModelScore)
	// 80*0.4 + 50*0.6 = 62
	require.Equal(t, 62, *job.TotalScore)
}

func TestWorkerEmitsOrderedProgress(t *testing.T) {
	fetcher := &countingFetcher{}
	w, queue, store, broker := newHarness(t, fetcher, Config{
		MaxRetries:       1,
		RetryBackoffBase: time.Millisecond,
	})
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	createJob(t, store, "job-progress", "https://example.com")

	events, cancelSub := broker.Subscribe("job-progress")
	defer cancelSub()

	require.NoError(t, queue.Enqueue(ctx, analysis.QueueItem{JobID: "job-progress", URL: "https://example.com"}))
	go w.Run(ctx)

	var seen []int
	for evt := range events {
		seen = append(seen, evt.Progress)
		if evt.Terminal() {
			require.Equal(t, progress.TypeComplete, evt.Type)
			require.NotNil(t, evt.Data)
			break
		}
	}

	require.Equal(t, []int{10, 30, 40, 60, 70, 90, 100}, seen)
}
