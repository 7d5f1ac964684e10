package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/nine4-team/memories-sub004/internal/api"
	"github.com/nine4-team/memories-sub004/internal/api/middleware"
)

type stubRunner struct {
	calls int
	err   error
}

func (s *stubRunner) RunOnce(_ context.Context) error {
	s.calls++
	return s.err
}

const testServiceToken = "test-service-token-0123456789abcdef"

func newInternalRouter(runner *stubRunner) http.Handler {
	h := api.NewDispatchHandler(runner)
	r := chi.NewRouter()
	r.Route("/internal", func(r chi.Router) {
		r.Use(middleware.ServiceTokenMiddleware(testServiceToken))
		r.Post("/dispatch", h.Trigger)
	})
	return r
}

func TestDispatchTrigger(t *testing.T) {
	t.Parallel()

	t.Run("valid token triggers a pass", func(t *testing.T) {
		t.Parallel()

		runner := &stubRunner{}
		req := httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
		req.Header.Set(middleware.ServiceTokenHeader, testServiceToken)
		rr := httptest.NewRecorder()
		newInternalRouter(runner).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1, runner.calls)
		assert.Contains(t, rr.Body.String(), "dispatched")
	})

	t.Run("missing token rejected with 401", func(t *testing.T) {
		t.Parallel()

		runner := &stubRunner{}
		req := httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
		rr := httptest.NewRecorder()
		newInternalRouter(runner).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Zero(t, runner.calls)
	})

	t.Run("wrong token rejected with 401", func(t *testing.T) {
		t.Parallel()

		runner := &stubRunner{}
		req := httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
		req.Header.Set(middleware.ServiceTokenHeader, "intruder-token-0123456789abcdef")
		rr := httptest.NewRecorder()
		newInternalRouter(runner).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Zero(t, runner.calls)
	})

	t.Run("runner failure maps to 500", func(t *testing.T) {
		t.Parallel()

		runner := &stubRunner{err: errors.New("find scheduled failed")}
		req := httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
		req.Header.Set(middleware.ServiceTokenHeader, testServiceToken)
		rr := httptest.NewRecorder()
		newInternalRouter(runner).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("handler without middleware refuses untrusted callers", func(t *testing.T) {
		t.Parallel()

		runner := &stubRunner{}
		h := api.NewDispatchHandler(runner)
		req := httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
		rr := httptest.NewRecorder()
		h.Trigger(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Zero(t, runner.calls)
	})
}
