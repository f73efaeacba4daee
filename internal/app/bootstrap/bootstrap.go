package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	quadraticvoting "quadvote/contexts/governance/quadratic-voting"
	postgresadapter "quadvote/contexts/governance/quadratic-voting/adapters/postgres"
	workerapp "quadvote/contexts/governance/quadratic-voting/application/workers"
	"quadvote/internal/platform/config"
	"quadvote/internal/platform/db"
	"quadvote/internal/platform/httpserver"
	"quadvote/internal/platform/messaging"
	"quadvote/internal/platform/ratelimit"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server        *httpserver.Server
	postgres      *db.Postgres
	limiter       *ratelimit.Limiter
	sweepInterval time.Duration
	logger        *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  workerapp.OutboxRelay
	closer       workerapp.ScheduledCloser
	announcer    workerapp.ResultsAnnouncer
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module := quadraticvoting.NewModule(quadraticvoting.Dependencies{
		Store:  repo,
		Outbox: repo,
		Clock:  postgresadapter.SystemClock{},
		IDGen:  postgresadapter.UUIDGenerator{},
		Logger: logger,
	})

	limiter := ratelimit.NewLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, logger)
	policy := httpserver.RateLimitPolicy{
		SkipFailed:    cfg.RateLimitSkipFailed,
		SkipSucceeded: cfg.RateLimitSkipSucceeded,
	}

	server := httpserver.New(module, limiter, policy, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:        server,
		postgres:      pg,
		limiter:       limiter,
		sweepInterval: cfg.RateLimitSweepInterval,
		logger:        logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module := quadraticvoting.NewModule(quadraticvoting.Dependencies{
		Store:  repo,
		Outbox: repo,
		Clock:  postgresadapter.SystemClock{},
		IDGen:  postgresadapter.UUIDGenerator{},
		Logger: logger,
	})

	return &WorkerApp{
		postgres: pg,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: kafka,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: cfg.OutboxBatchSize,
			Logger:    logger,
		},
		closer: workerapp.ScheduledCloser{
			Store:     repo,
			Votes:     module.Votes,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: cfg.SchedulerBatchSize,
			Logger:    logger,
		},
		announcer: workerapp.ResultsAnnouncer{
			Subscriber: kafka,
			Results:    module.Results,
			Outbox:     repo,
			Clock:      postgresadapter.SystemClock{},
			IDGen:      postgresadapter.UUIDGenerator{},
			Logger:     logger,
		},
		pollInterval: cfg.WorkerPollInterval,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(ctx context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	go a.limiter.Start(ctx, a.sweepInterval)
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	group, ctx := errgroup.WithContext(ctx)
	if err := w.announcer.Start(ctx); err != nil {
		return err
	}
	group.Go(func() error {
		return w.poll(ctx, w.outboxRelay.RunOnce)
	})
	group.Go(func() error {
		return w.poll(ctx, w.closer.RunOnce)
	})
	return group.Wait()
}

func (w *WorkerApp) poll(ctx context.Context, runOnce func(context.Context) error) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if err := runOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
