package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/nine4-team/memories-sub004/internal/config"
	"github.com/nine4-team/memories-sub004/internal/dispatch"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/events"
	"github.com/nine4-team/memories-sub004/internal/platform/gemini"
	"github.com/nine4-team/memories-sub004/internal/platform/postgres"
	"github.com/nine4-team/memories-sub004/internal/service"
	"github.com/nine4-team/memories-sub004/internal/store"
	"github.com/nine4-team/memories-sub004/internal/worker"
)

// application holds the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	memoryStore store.MemoryStore
	jobStore    store.JobStore

	enricher      *gemini.Enricher
	memoryService service.MemoryService
	eventEmitter  events.Emitter
	dispatcher    *dispatch.Dispatcher
}

// newApplication creates an application instance with all dependencies
// initialized. The dispatcher is started; callers own its shutdown via
// cleanup.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	app.memoryStore = postgres.NewPostgresMemoryStore(db, logger)
	app.jobStore = postgres.NewPostgresJobStore(db, logger)

	var err error
	app.enricher, err = gemini.NewEnricher(ctx, logger.With("component", "enricher"), cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize enricher: %w", err)
	}
	logger.Info("enricher initialized", "model", cfg.LLM.ModelName)

	registry := worker.NewRegistry()
	textWorker := worker.NewTextWorker(app.memoryStore, app.enricher, logger)
	registry.Register(domain.MemoryKindMoment, textWorker)
	registry.Register(domain.MemoryKindMemento, textWorker)
	registry.Register(domain.MemoryKindStory,
		worker.NewStoryWorker(app.memoryStore, app.enricher, logger))

	app.dispatcher = dispatch.NewDispatcher(
		app.jobStore,
		app.memoryStore,
		registry,
		dispatch.Config{
			BatchSize:    cfg.Dispatch.BatchSize,
			MaxAttempts:  cfg.Dispatch.MaxAttempts,
			TickInterval: time.Duration(cfg.Dispatch.TickSeconds) * time.Second,
			ReclaimStale: cfg.Dispatch.ReclaimStale,
			StaleAge:     time.Duration(cfg.Dispatch.StaleAgeMinutes) * time.Minute,
		},
		logger,
	)

	emitter := events.NewInMemoryEmitter(logger)
	emitter.RegisterHandler(app.dispatcher)
	app.eventEmitter = emitter

	app.memoryService, err = service.NewMemoryService(
		db,
		app.memoryStore,
		app.jobStore,
		app.eventEmitter,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory service: %w", err)
	}

	app.dispatcher.Start()

	logger.Info("application initialized successfully")
	return app, nil
}

// Run starts the HTTP server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.dispatcher != nil {
		app.dispatcher.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
