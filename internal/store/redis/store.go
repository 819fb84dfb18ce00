// Package redis provides a ResultStore backed by Redis. Records are stored
// as JSON under analysis:<id> with a TTL; share tokens index the job id
// under share:<token> with the same TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagescope/pagescope/internal/analysis"
)

const (
	jobKeyPrefix   = "analysis:"
	shareKeyPrefix = "share:"
)

// Options configure the connection.
type Options struct {
	Address  string
	Password string
	DB       int
}

// Store implements analysis.ResultStore on a Redis client.
type Store struct {
	client   *redis.Client
	tokenGen analysis.TokenGenerator
	clock    analysis.Clock
	ttl      time.Duration
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, opts Options, clock analysis.Clock, tokenGen analysis.TokenGenerator, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{client: client, tokenGen: tokenGen, clock: clock, ttl: ttl}, nil
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(client *redis.Client, clock analysis.Clock, tokenGen analysis.TokenGenerator, ttl time.Duration) *Store {
	return &Store{client: client, tokenGen: tokenGen, clock: clock, ttl: ttl}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies connectivity, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) writeJob(ctx context.Context, job analysis.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := s.client.Set(ctx, jobKeyPrefix+job.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("write job %s: %w", job.ID, err)
	}
	return nil
}

// Create stores a new job record with the configured TTL.
func (s *Store) Create(ctx context.Context, job analysis.Job) error {
	return s.writeJob(ctx, job)
}

// Get returns the job or analysis.ErrNotFound after expiry.
func (s *Store) Get(ctx context.Context, id string) (analysis.Job, error) {
	raw, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return analysis.Job{}, analysis.ErrNotFound
	}
	if err != nil {
		return analysis.Job{}, fmt.Errorf("read job %s: %w", id, err)
	}
	var job analysis.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return analysis.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// Update merges the patch into the stored record and rewrites it, which
// also refreshes the TTL.
func (s *Store) Update(ctx context.Context, id string, patch analysis.Patch) (analysis.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return analysis.Job{}, err
	}

	if patch.Status != nil && *patch.Status != job.Status {
		if !job.Status.CanTransition(*patch.Status) {
			return analysis.Job{}, analysis.ErrInvalidTransition
		}
		job.Status = *patch.Status
	}
	if patch.RuleScore != nil {
		job.RuleScore = patch.RuleScore
	}
	if patch.ModelScore != nil {
		job.ModelScore = patch.ModelScore
	}
	if patch.TotalScore != nil {
		job.TotalScore = patch.TotalScore
	}
	if patch.RuleReport != nil {
		job.RuleReport = patch.RuleReport
	}
	if patch.ModelReport != nil {
		job.ModelReport = patch.ModelReport
	}
	if patch.ShareToken != nil {
		job.ShareToken = *patch.ShareToken
	}
	if patch.ErrorText != nil {
		job.ErrorText = *patch.ErrorText
	}
	job.UpdatedAt = s.clock.Now()

	if err := s.writeJob(ctx, job); err != nil {
		return analysis.Job{}, err
	}
	if patch.ShareToken != nil {
		if err := s.client.Set(ctx, shareKeyPrefix+job.ShareToken, job.ID, s.ttl).Err(); err != nil {
			return analysis.Job{}, fmt.Errorf("write share token for %s: %w", job.ID, err)
		}
	}
	return job, nil
}

// CreateShareToken mints a token for the job, or returns the existing one.
// The token mapping carries the same TTL as the record.
func (s *Store) CreateShareToken(ctx context.Context, id string) (string, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.ShareToken != "" {
		return job.ShareToken, nil
	}

	token, err := s.tokenGen.NewToken()
	if err != nil {
		return "", err
	}
	if _, err := s.Update(ctx, id, analysis.Patch{ShareToken: &token}); err != nil {
		return "", err
	}
	return token, nil
}

// GetByShareToken resolves a token to its job.
func (s *Store) GetByShareToken(ctx context.Context, token string) (analysis.Job, error) {
	id, err := s.client.Get(ctx, shareKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return analysis.Job{}, analysis.ErrNotFound
	}
	if err != nil {
		return analysis.Job{}, fmt.Errorf("resolve share token: %w", err)
	}
	return s.Get(ctx, id)
}

var _ analysis.ResultStore = (*Store)(nil)
