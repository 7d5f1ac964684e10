package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nine4-team/memories-sub004/internal/api"
	apiMiddleware "github.com/nine4-team/memories-sub004/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	memoryHandler := api.NewMemoryHandler(app.memoryService)
	dispatchHandler := api.NewDispatchHandler(app.dispatcher)

	r.Route("/api", func(r chi.Router) {
		r.Post("/memories", memoryHandler.CreateMemory)
		r.Get("/memories/{id}", memoryHandler.GetMemory)
		r.Put("/memories/{id}/audio", memoryHandler.AttachAudio)
		r.Put("/memories/{id}/media/{position}", memoryHandler.AttachMedia)
		r.Post("/memories/{id}/reprocess", memoryHandler.Reprocess)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(apiMiddleware.ServiceTokenMiddleware(app.config.Server.ServiceToken))
		r.Post("/dispatch", dispatchHandler.Trigger)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
