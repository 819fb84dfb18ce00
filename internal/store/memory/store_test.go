package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagescope/pagescope/internal/analysis"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

type fakeTokens struct {
	next  string
	calls int
}

func (f *fakeTokens) NewToken() (string, error) {
	f.calls++
	return f.next, nil
}

func newTestStore() (*Store, *fakeClock, *fakeTokens) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tokens := &fakeTokens{next: "tok-1"}
	return New(clock, tokens, 24*time.Hour), clock, tokens
}

func TestCreateAndGet(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()

	job := analysis.Job{ID: "job-1", URL: "https://example.com", Status: analysis.StatusPending}
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, job, got)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, analysis.ErrNotFound)
}

func TestUpdateMergesPatch(t *testing.T) {
	store, clock, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, analysis.Job{ID: "job-1", Status: analysis.StatusPending}))

	clock.Advance(time.Minute)
	status := analysis.StatusProcessing
	updated, err := store.Update(ctx, "job-1", analysis.Patch{Status: &status})
	require.NoError(t, err)
	require.Equal(t, analysis.StatusProcessing, updated.Status)
	require.Equal(t, clock.Now(), updated.UpdatedAt)

	score := 75
	updated, err = store.Update(ctx, "job-1", analysis.Patch{RuleScore: &score})
	require.NoError(t, err)
	require.Equal(t, analysis.StatusProcessing, updated.Status)
	require.Equal(t, 75, *updated.RuleScore)
}

func TestUpdateRejectsLifecycleRegression(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, analysis.Job{ID: "job-1", Status: analysis.StatusCompleted}))

	status := analysis.StatusProcessing
	_, err := store.Update(ctx, "job-1", analysis.Patch{Status: &status})
	require.ErrorIs(t, err, analysis.ErrInvalidTransition)

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, analysis.StatusCompleted, got.Status)
}

func TestExpiryIsLazy(t *testing.T) {
	store, clock, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, analysis.Job{ID: "job-1"}))

	clock.Advance(24*time.Hour + time.Second)
	_, err := store.Get(ctx, "job-1")
	require.ErrorIs(t, err, analysis.ErrNotFound)

	_, err = store.Update(ctx, "job-1", analysis.Patch{})
	require.ErrorIs(t, err, analysis.ErrNotFound)
}

func TestUpdateRefreshesTTL(t *testing.T) {
	store, clock, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, analysis.Job{ID: "job-1"}))

	clock.Advance(23 * time.Hour)
	_, err := store.Update(ctx, "job-1", analysis.Patch{})
	require.NoError(t, err)

	clock.Advance(23 * time.Hour)
	_, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
}

func TestCreateShareTokenIsIdempotent(t *testing.T) {
	store, _, tokens := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, analysis.Job{ID: "job-1"}))

	first, err := store.CreateShareToken(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "tok-1", first)

	tokens.next = "tok-2"
	second, err := store.CreateShareToken(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, tokens.calls)

	job, err := store.GetByShareToken(ctx, first)
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
}

func TestShareTokenExpiresWithJob(t *testing.T) {
	store, clock, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, analysis.Job{ID: "job-1"}))
	token, err := store.CreateShareToken(ctx, "job-1")
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	_, err = store.GetByShareToken(ctx, token)
	require.ErrorIs(t, err, analysis.ErrNotFound)

	_, err = store.CreateShareToken(ctx, "job-1")
	require.ErrorIs(t, err, analysis.ErrNotFound)
}
