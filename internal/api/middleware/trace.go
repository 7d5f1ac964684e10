// Package middleware provides the HTTP middleware chain: request
// tracing and service-token authentication for internal routes.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/nine4-team/memories-sub004/internal/api/shared"
	"github.com/nine4-team/memories-sub004/internal/platform/logger"
)

// TraceMiddleware adds a trace ID to the request context and attaches a
// trace-scoped logger, so every handler and store call downstream logs
// with the same correlation ID. Apply it first in the chain.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())
		traceID := shared.GetTraceID(ctx)

		log := slog.With(slog.String("trace_id", traceID))
		ctx = logger.WithLogger(ctx, log)

		log.Debug("request started",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
