package analysis

import (
	"context"
	"time"
)

// Fetcher retrieves a page. It follows redirects, reports the final URL, and
// performs no retries; retry is the orchestrator's responsibility.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (CrawlResult, error)
}

// PromotionDetector decides whether a probe result warrants a rendered fetch.
type PromotionDetector interface {
	ShouldPromote(res CrawlResult) bool
}

// RuleScorer produces the deterministic report. It is total: any CrawlResult
// yields a report, defaulting to worst-case scores when facts are absent.
type RuleScorer interface {
	Score(res CrawlResult) RuleReport
}

// ModelScorer produces the model-assisted report. It never fails; when the
// model service is unavailable it substitutes the neutral default report.
type ModelScorer interface {
	Score(ctx context.Context, res CrawlResult) ModelReport
}

// Patch carries partial job fields for a merge update. Nil fields are left
// untouched.
type Patch struct {
	Status      *Status
	RuleScore   *int
	ModelScore  *int
	TotalScore  *int
	RuleReport  *RuleReport
	ModelReport *ModelReport
	ShareToken  *string
	ErrorText   *string
}

// ResultStore is the ephemeral, TTL-bound persistence for job records plus
// the share-token index. The job record and its token mapping are written in
// two separate operations with no transactional guarantee.
type ResultStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	Update(ctx context.Context, id string, patch Patch) (Job, error)
	CreateShareToken(ctx context.Context, id string) (string, error)
	GetByShareToken(ctx context.Context, token string) (Job, error)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	URL       string
	Submitted int64
}

// Queue provides enqueue/dequeue semantics for analysis jobs. Implementations
// must reject a second concurrent enqueue of the same job id; Release frees
// the id once the job reaches a terminal state.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
	Release(jobID string)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// TokenGenerator mints high-entropy opaque share tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}
