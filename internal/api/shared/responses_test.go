package shared_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nine4-team/memories-sub004/internal/api/shared"
)

func TestRespondWithJSON(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	shared.RespondWithJSON(rr, req, http.StatusCreated, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRespondWithErrorIncludesTraceID(t *testing.T) {
	t.Parallel()

	ctx := shared.SetTraceID(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(ctx)
	rr := httptest.NewRecorder()

	shared.RespondWithError(rr, req, http.StatusNotFound, "Memory not found")

	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Memory not found", resp.Error)
	assert.Equal(t, shared.GetTraceID(ctx), resp.TraceID)
	assert.Len(t, resp.TraceID, 32)
}

func TestRespondWithErrorAndLogSanitizesBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	internal := errors.New("dial postgres://svc:secretpw@db:5432/memories: refused")
	shared.RespondWithErrorAndLog(rr, req, http.StatusInternalServerError,
		"Failed to create memory", internal)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secretpw")
	assert.Contains(t, rr.Body.String(), "Failed to create memory")
}

func TestTraceIDRoundTrip(t *testing.T) {
	t.Parallel()

	assert.Empty(t, shared.GetTraceID(context.Background()))

	ctx := shared.SetTraceID(context.Background())
	first := shared.GetTraceID(ctx)
	assert.Len(t, first, 32)

	second := shared.GetTraceID(shared.SetTraceID(context.Background()))
	assert.NotEqual(t, first, second)
}

func TestTrustedCallerFlag(t *testing.T) {
	t.Parallel()

	assert.False(t, shared.IsTrustedCaller(context.Background()))
	assert.True(t, shared.IsTrustedCaller(shared.SetTrustedCaller(context.Background())))
}
