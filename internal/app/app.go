// Package app builds and holds the long-lived application services, acting
// as the dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/api"
	"github.com/pagescope/pagescope/internal/clock/system"
	"github.com/pagescope/pagescope/internal/config"
	"github.com/pagescope/pagescope/internal/dispatcher"
	collyfetcher "github.com/pagescope/pagescope/internal/fetcher/colly"
	"github.com/pagescope/pagescope/internal/fetcher/detector"
	headlessfetcher "github.com/pagescope/pagescope/internal/fetcher/headless"
	uuidgen "github.com/pagescope/pagescope/internal/id/uuid"
	"github.com/pagescope/pagescope/internal/llm"
	"github.com/pagescope/pagescope/internal/llm/openai"
	"github.com/pagescope/pagescope/internal/logging"
	"github.com/pagescope/pagescope/internal/metrics"
	"github.com/pagescope/pagescope/internal/progress"
	queuememory "github.com/pagescope/pagescope/internal/queue/memory"
	modelscorer "github.com/pagescope/pagescope/internal/scorer/model"
	rulescorer "github.com/pagescope/pagescope/internal/scorer/rules"
	storememory "github.com/pagescope/pagescope/internal/store/memory"
	storeredis "github.com/pagescope/pagescope/internal/store/redis"
	"github.com/pagescope/pagescope/internal/token"
	"github.com/pagescope/pagescope/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	apiServer  *api.Server
	dispatch   *dispatcher.Dispatcher
	broker     *progress.Broker
	queue      *queuememory.Queue
	redisStore *storeredis.Store
	headless   *headlessfetcher.Fetcher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Provider),
		zap.String("model", cfg.Model.Provider),
		zap.Bool("headless", cfg.Headless.Enabled))

	clock := system.New()
	tokenGen := token.NewGenerator()

	store, pinger, err := app.setupStore(ctx, clock, tokenGen)
	if err != nil {
		return nil, err
	}

	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var (
		rendered analysis.Fetcher
		promoter analysis.PromotionDetector
	)
	if cfg.Headless.Enabled {
		app.headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		rendered = app.headless
		promoter = detector.NewHeuristic(0)
	}

	modelClient, err := app.setupModelClient()
	if err != nil {
		return nil, err
	}

	app.broker = progress.NewBroker(logger.Named("progress"))
	app.queue = queuememory.NewQueue(cfg.Pipeline.QueueDepth)

	rules := rulescorer.New()
	model := modelscorer.New(modelClient, cfg.Model.MaxChars, logger.Named("model"))

	workerCfg := worker.Config{
		MaxRetries:       cfg.Pipeline.MaxRetries,
		RetryBackoffBase: cfg.RetryBackoff(),
		FetchTimeout:     cfg.FetchTimeout(),
	}
	workers := make([]*worker.Worker, 0, cfg.Pipeline.Concurrency)
	for i := 0; i < cfg.Pipeline.Concurrency; i++ {
		workers = append(workers, worker.New(
			app.queue, store, app.broker,
			probe, rendered, promoter,
			rules, model,
			clock, workerCfg,
			logger.Named("worker"),
		))
	}
	app.dispatch = dispatcher.New(app.queue, workers)

	app.apiServer = api.NewServer(
		store,
		app.dispatch,
		app.broker,
		uuidgen.NewGenerator(),
		clock,
		pinger,
		cfg,
		logger.Named("api"),
	)
	return app, nil
}

func (a *App) setupStore(ctx context.Context, clock analysis.Clock, tokenGen analysis.TokenGenerator) (analysis.ResultStore, api.Pinger, error) {
	switch a.cfg.Store.Provider {
	case "redis":
		a.logger.Info("using redis result store", zap.String("address", a.cfg.Store.Redis.Address))
		store, err := storeredis.New(ctx, storeredis.Options{
			Address:  a.cfg.Store.Redis.Address,
			Password: a.cfg.Store.Redis.Password,
			DB:       a.cfg.Store.Redis.DB,
		}, clock, tokenGen, a.cfg.ResultTTL())
		if err != nil {
			return nil, nil, fmt.Errorf("redis store init failed: %w", err)
		}
		a.redisStore = store
		return store, store, nil
	case "memory":
		a.logger.Info("using in-memory result store")
		return storememory.New(clock, tokenGen, a.cfg.ResultTTL()), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store provider: %s", a.cfg.Store.Provider)
	}
}

func (a *App) setupModelClient() (llm.Client, error) {
	switch a.cfg.Model.Provider {
	case "openai":
		client, err := openai.NewClient(
			a.cfg.Model.APIKey,
			a.cfg.Model.Model,
			time.Duration(a.cfg.Model.TimeoutSeconds)*time.Second,
		)
		if err != nil {
			return nil, fmt.Errorf("model client init failed: %w", err)
		}
		return client, nil
	case "noop":
		a.logger.Info("model provider disabled, jobs will score with neutral model reports")
		return llm.Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown model provider: %s", a.cfg.Model.Provider)
	}
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Pipeline.Concurrency))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close()
}

// Close gracefully shuts down the application.
func (a *App) Close() error {
	a.queue.Close()
	a.broker.Close()
	if a.headless != nil {
		a.headless.Close()
	}
	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil {
			a.logger.Warn("redis store close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
	a.logger.Info("shutdown complete")
	return nil
}
