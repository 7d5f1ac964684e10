package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nine4-team/memories-sub004/internal/config"
	"github.com/nine4-team/memories-sub004/internal/enrich"
	"github.com/nine4-team/memories-sub004/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnricher(t *testing.T, generate generateFn) *Enricher {
	t.Helper()

	log, _ := logger.GetTestLogger(t)
	e, err := newEnricherCore(log, config.LLMConfig{
		GeminiAPIKey:      "test-key",
		ModelName:         "gemini-2.0-flash",
		MaxRetries:        2,
		RetryDelaySeconds: 1,
	})
	require.NoError(t, err)
	e.generate = generate
	return e
}

func TestGenerateTitle(t *testing.T) {
	t.Parallel()

	t.Run("returns trimmed model output", func(t *testing.T) {
		t.Parallel()

		var gotPrompt string
		e := testEnricher(t, func(_ context.Context, _ string, prompt string) (string, error) {
			gotPrompt = prompt
			return "  Lunch with Sam \n", nil
		})

		title, err := e.GenerateTitle(context.Background(), "Had lunch with Sam at the pier")
		require.NoError(t, err)
		assert.Equal(t, "Lunch with Sam", title)
		assert.Contains(t, gotPrompt, "Had lunch with Sam at the pier")
	})

	t.Run("rejects blank input without calling the model", func(t *testing.T) {
		t.Parallel()

		called := false
		e := testEnricher(t, func(context.Context, string, string) (string, error) {
			called = true
			return "", nil
		})

		_, err := e.GenerateTitle(context.Background(), "   ")
		assert.ErrorIs(t, err, enrich.ErrContentRejected)
		assert.False(t, called)
	})

	t.Run("empty model output is an invalid response", func(t *testing.T) {
		t.Parallel()

		e := testEnricher(t, func(context.Context, string, string) (string, error) {
			return "   ", nil
		})

		_, err := e.GenerateTitle(context.Background(), "some text")
		assert.ErrorIs(t, err, enrich.ErrInvalidResponse)
	})
}

func TestCallWithRetry(t *testing.T) {
	t.Parallel()

	t.Run("retries transient errors then succeeds", func(t *testing.T) {
		t.Parallel()

		calls := 0
		e := testEnricher(t, func(context.Context, string, string) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("connection reset")
			}
			return "A Title", nil
		})

		title, err := e.GenerateTitle(context.Background(), "some text")
		require.NoError(t, err)
		assert.Equal(t, "A Title", title)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()

		calls := 0
		e := testEnricher(t, func(context.Context, string, string) (string, error) {
			calls++
			return "", errors.New("connection reset")
		})

		_, err := e.GenerateTitle(context.Background(), "some text")
		assert.ErrorIs(t, err, enrich.ErrTransient)
		assert.Equal(t, 3, calls) // initial attempt + 2 retries
	})

	t.Run("does not retry safety blocks", func(t *testing.T) {
		t.Parallel()

		calls := 0
		e := testEnricher(t, func(context.Context, string, string) (string, error) {
			calls++
			return "", fmt.Errorf("%w: finish reason safety", enrich.ErrContentBlocked)
		})

		_, err := e.GenerateTitle(context.Background(), "some text")
		assert.ErrorIs(t, err, enrich.ErrContentBlocked)
		assert.Equal(t, 1, calls)
	})

	t.Run("does not retry malformed responses", func(t *testing.T) {
		t.Parallel()

		calls := 0
		e := testEnricher(t, func(context.Context, string, string) (string, error) {
			calls++
			return "", fmt.Errorf("%w: no content generated", enrich.ErrInvalidResponse)
		})

		_, err := e.RewriteNarrative(context.Background(), "some text")
		assert.ErrorIs(t, err, enrich.ErrInvalidResponse)
		assert.Equal(t, 1, calls)
	})
}
