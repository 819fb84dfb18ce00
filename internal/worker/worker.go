// Package worker implements the analysis pipeline execution loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/metrics"
	"github.com/pagescope/pagescope/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	MaxRetries       int
	RetryBackoffBase time.Duration
	FetchTimeout     time.Duration
}

// Worker consumes queue items and executes the analysis pipeline.
type Worker struct {
	queue           analysis.Queue
	store           analysis.ResultStore
	broker          *progress.Broker
	probeFetcher    analysis.Fetcher
	headlessFetcher analysis.Fetcher
	detector        analysis.PromotionDetector
	ruleScorer      analysis.RuleScorer
	modelScorer     analysis.ModelScorer
	clock           analysis.Clock
	cfg             Config
	logger          *zap.Logger
}

// New constructs a Worker. The headless fetcher and detector are optional;
// when either is nil no promotion happens.
func New(
	queue analysis.Queue,
	store analysis.ResultStore,
	broker *progress.Broker,
	probe analysis.Fetcher,
	headless analysis.Fetcher,
	detector analysis.PromotionDetector,
	ruleScorer analysis.RuleScorer,
	modelScorer analysis.ModelScorer,
	clock analysis.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:           queue,
		store:           store,
		broker:          broker,
		probeFetcher:    probe,
		headlessFetcher: headless,
		detector:        detector,
		ruleScorer:      ruleScorer,
		modelScorer:     modelScorer,
		clock:           clock,
		cfg:             cfg,
		logger:          logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item analysis.QueueItem) {
	defer w.queue.Release(item.JobID)
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	status := analysis.StatusProcessing
	if _, err := w.store.Update(ctx, item.JobID, analysis.Patch{Status: &status}); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			metrics.ObserveRetry()
			backoff := w.cfg.RetryBackoffBase << (attempt - 2)
			w.logger.Warn("retrying job",
				zap.String("job_id", item.JobID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				w.failJob(ctx, item, fmt.Errorf("canceled: %w", ctx.Err()))
				return
			case <-time.After(backoff):
			}
		}

		err := w.runAttempt(ctx, item)
		if err == nil {
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	w.failJob(ctx, item, lastErr)
}

// runAttempt executes one pass of the pipeline. A panic in any stage is
// converted into an error so the attempt can be retried.
func (w *Worker) runAttempt(ctx context.Context, item analysis.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return w.runPipeline(ctx, item)
}

func (w *Worker) runPipeline(ctx context.Context, item analysis.QueueItem) error {
	w.emit(item.JobID, progress.StageFetch, 10, "Fetching page")

	fetchStart := w.clock.Now()
	res, err := w.fetch(ctx, item.URL)
	metrics.ObserveStage("fetch", w.clock.Now().Sub(fetchStart))
	if err != nil {
		return err
	}
	w.emit(item.JobID, progress.StageFetch, 30, "Page fetched")

	w.emit(item.JobID, progress.StageRules, 40, "Running rule checks")
	rulesStart := w.clock.Now()
	ruleReport := w.ruleScorer.Score(res)
	metrics.ObserveStage("rules", w.clock.Now().Sub(rulesStart))
	metrics.ObserveScore("rule", ruleReport.Score)

	ruleScore := ruleReport.Score
	if _, err := w.store.Update(ctx, item.JobID, analysis.Patch{
		RuleScore:  &ruleScore,
		RuleReport: &ruleReport,
	}); err != nil {
		return fmt.Errorf("persist rule report: %w", err)
	}
	w.emit(item.JobID, progress.StageRules, 60, "Rule checks complete")

	w.emit(item.JobID, progress.StageModel, 70, "Running model analysis")
	modelStart := w.clock.Now()
	modelReport := w.modelScorer.Score(ctx, res)
	metrics.ObserveStage("model", w.clock.Now().Sub(modelStart))
	metrics.ObserveScore("model", modelReport.Score)
	w.emit(item.JobID, progress.StageModel, 90, "Model analysis complete")

	modelScore := modelReport.Score
	total := analysis.TotalScore(ruleScore, modelScore)
	metrics.ObserveScore("total", total)

	status := analysis.StatusCompleted
	job, err := w.store.Update(ctx, item.JobID, analysis.Patch{
		Status:      &status,
		ModelScore:  &modelScore,
		TotalScore:  &total,
		ModelReport: &modelReport,
	})
	if err != nil {
		return fmt.Errorf("persist final result: %w", err)
	}
	metrics.ObserveJob(string(analysis.StatusCompleted))

	w.broker.Publish(progress.Event{
		JobID:    item.JobID,
		Type:     progress.TypeComplete,
		Stage:    progress.StagePersist,
		Progress: 100,
		Message:  "Analysis complete",
		Data:     &job,
	})
	w.logger.Info("job completed",
		zap.String("job_id", item.JobID),
		zap.String("url", item.URL),
		zap.Int("rule_score", ruleScore),
		zap.Int("model_score", modelScore),
		zap.Int("total_score", total),
		zap.Bool("headless", res.UsedHeadless))
	return nil
}

func (w *Worker) fetch(ctx context.Context, url string) (analysis.CrawlResult, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()

	res, err := w.probeFetcher.Fetch(fetchCtx, url)
	if err != nil {
		metrics.ObserveFetch(url, "probe", "error")
		return analysis.CrawlResult{}, err
	}
	metrics.ObserveFetch(url, "probe", "ok")

	if w.detector == nil || w.headlessFetcher == nil || !w.detector.ShouldPromote(res) {
		return res, nil
	}

	headlessCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()

	rendered, err := w.headlessFetcher.Fetch(headlessCtx, url)
	if err != nil {
		// Keep the probe result when rendering fails.
		metrics.ObserveFetch(url, "headless", "error")
		w.logger.Warn("headless promotion failed", zap.String("url", url), zap.Error(err))
		return res, nil
	}
	metrics.ObserveFetch(url, "headless", "ok")
	w.logger.Info("headless promotion applied", zap.String("url", url))
	return rendered, nil
}

func (w *Worker) failJob(ctx context.Context, item analysis.QueueItem, cause error) {
	errText := "analysis failed"
	if cause != nil {
		errText = cause.Error()
	}
	status := analysis.StatusFailed
	if _, err := w.store.Update(ctx, item.JobID, analysis.Patch{
		Status:    &status,
		ErrorText: &errText,
	}); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
	metrics.ObserveJob(string(analysis.StatusFailed))

	w.broker.Publish(progress.Event{
		JobID:    item.JobID,
		Type:     progress.TypeError,
		Progress: 100,
		Message:  "Analysis failed",
		Err:      errText,
	})
	w.logger.Error("job failed",
		zap.String("job_id", item.JobID),
		zap.String("url", item.URL),
		zap.Error(cause))
}

func (w *Worker) emit(jobID string, stage progress.Stage, pct int, message string) {
	w.broker.Publish(progress.Event{
		JobID:    jobID,
		Type:     progress.TypeProgress,
		Stage:    stage,
		Progress: pct,
		Message:  message,
	})
}
