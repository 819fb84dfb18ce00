// Package memory provides an in-process ResultStore with TTL semantics.
// Expiry is lazy: records past their deadline are dropped when read.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pagescope/pagescope/internal/analysis"
)

type entry struct {
	job       analysis.Job
	expiresAt time.Time
}

// Store keeps job records and the share-token index in maps guarded by a
// single RWMutex.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]entry
	tokens map[string]string

	clock    analysis.Clock
	tokenGen analysis.TokenGenerator
	ttl      time.Duration
}

// New builds an empty store. Every write refreshes the record's TTL.
func New(clock analysis.Clock, tokenGen analysis.TokenGenerator, ttl time.Duration) *Store {
	return &Store{
		jobs:     make(map[string]entry),
		tokens:   make(map[string]string),
		clock:    clock,
		tokenGen: tokenGen,
		ttl:      ttl,
	}
}

// Create stores a new job record.
func (s *Store) Create(_ context.Context, job analysis.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = entry{job: job, expiresAt: s.clock.Now().Add(s.ttl)}
	return nil
}

// Get returns the job or analysis.ErrNotFound once it has expired.
func (s *Store) Get(_ context.Context, id string) (analysis.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id string) (analysis.Job, error) {
	ent, ok := s.jobs[id]
	if !ok {
		return analysis.Job{}, analysis.ErrNotFound
	}
	if s.clock.Now().After(ent.expiresAt) {
		delete(s.jobs, id)
		if ent.job.ShareToken != "" {
			delete(s.tokens, ent.job.ShareToken)
		}
		return analysis.Job{}, analysis.ErrNotFound
	}
	return ent.job, nil
}

// Update merges the patch into the stored record, bumps UpdatedAt and
// refreshes the TTL.
func (s *Store) Update(_ context.Context, id string, patch analysis.Patch) (analysis.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.getLocked(id)
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
		s.tokens[job.ShareToken] = id
	}
	if patch.ErrorText != nil {
		job.ErrorText = *patch.ErrorText
	}
	job.UpdatedAt = s.clock.Now()

	s.jobs[id] = entry{job: job, expiresAt: s.clock.Now().Add(s.ttl)}
	return job, nil
}

// CreateShareToken mints a token for the job, or returns the existing one.
func (s *Store) CreateShareToken(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	job, err := s.getLocked(id)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	if job.ShareToken != "" {
		s.mu.Unlock()
		return job.ShareToken, nil
	}
	s.mu.Unlock()

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
func (s *Store) GetByShareToken(_ context.Context, token string) (analysis.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.tokens[token]
	if !ok {
		return analysis.Job{}, analysis.ErrNotFound
	}
	job, err := s.getLocked(id)
	if err != nil {
		delete(s.tokens, token)
		return analysis.Job{}, err
	}
	return job, nil
}

var _ analysis.ResultStore = (*Store)(nil)
