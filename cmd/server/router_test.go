package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nine4-team/memories-sub004/internal/api/middleware"
	"github.com/nine4-team/memories-sub004/internal/config"
	"github.com/nine4-team/memories-sub004/internal/dispatch"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/events"
	"github.com/nine4-team/memories-sub004/internal/mocks"
	"github.com/nine4-team/memories-sub004/internal/service"
	"github.com/nine4-team/memories-sub004/internal/worker"
)

func newTestApplication(t *testing.T) *application {
	t.Helper()

	memories := mocks.NewMemoryStore()
	jobs := mocks.NewJobStore()
	registry := worker.NewRegistry()
	registry.Register(domain.MemoryKindMoment,
		worker.NewTextWorker(memories, &mocks.Enricher{Title: "A Title"}, nil))

	dispatcher := dispatch.NewDispatcher(jobs, memories, registry, dispatch.DefaultConfig(), nil)

	emitter := events.NewInMemoryEmitter(nil)
	emitter.RegisterHandler(dispatcher)

	svc, err := service.NewMemoryServiceForTesting(memories, jobs, emitter, nil)
	require.NoError(t, err)

	return &application{
		config: &config.Config{
			Server: config.ServerConfig{
				Port:         8080,
				LogLevel:     "info",
				ServiceToken: "router-test-token-0123456789",
			},
		},
		logger:        slog.Default(),
		memoryStore:   memories,
		jobStore:      jobs,
		memoryService: svc,
		eventEmitter:  emitter,
		dispatcher:    dispatcher,
	}
}

func TestRouterRoutes(t *testing.T) {
	t.Parallel()

	app := newTestApplication(t)
	router := app.setupRouter()

	t.Run("health check", func(t *testing.T) {
		t.Parallel()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OK", rr.Body.String())
	})

	t.Run("internal dispatch requires service token", func(t *testing.T) {
		t.Parallel()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		req := httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
		req.Header.Set(middleware.ServiceTokenHeader, "router-test-token-0123456789")
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("unknown route is 404", func(t *testing.T) {
		t.Parallel()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cards", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
