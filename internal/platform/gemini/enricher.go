// Package gemini implements the enrich.Enricher interface using
// Google's Gemini API.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"github.com/nine4-team/memories-sub004/internal/config"
	"github.com/nine4-team/memories-sub004/internal/enrich"
	"google.golang.org/genai"
)

// promptData carries the fields available to the prompt templates.
type promptData struct {
	Text string
}

const titlePromptTemplate = `You are titling a personal memory for a private journal.
Write a short, warm, specific title (at most eight words) for the memory below.
Respond with the title only, no quotes and no preamble.

Memory:
{{.Text}}`

const narrativePromptTemplate = `You are editing a dictated personal story for a private journal.
Rewrite the transcript below into a clean first-person narrative.
Fix grammar and filler words, keep every fact and the speaker's voice,
and do not invent details. Respond with the narrative only.

Transcript:
{{.Text}}`

// generateFn is the seam between the enricher and the Gemini client,
// replaceable in tests.
type generateFn func(ctx context.Context, model, prompt string) (string, error)

// Enricher implements enrich.Enricher against the Gemini API.
type Enricher struct {
	logger            *slog.Logger
	config            config.LLMConfig
	titleTemplate     *template.Template
	narrativeTemplate *template.Template
	model             string
	generate          generateFn
}

// NewEnricher creates a new Gemini-backed Enricher.
//
// Returns an error wrapping enrich.ErrInvalidConfig if the configuration
// is incomplete or the client cannot be constructed.
func NewEnricher(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Enricher, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", enrich.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", enrich.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", enrich.ErrInvalidConfig, err)
	}

	e, err := newEnricherCore(logger, cfg)
	if err != nil {
		return nil, err
	}

	e.generate = func(ctx context.Context, model, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err != nil {
			return "", err
		}
		if resp == nil || len(resp.Candidates) == 0 {
			return "", fmt.Errorf("%w: no content generated", enrich.ErrInvalidResponse)
		}
		if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
			return "", fmt.Errorf("%w: finish reason safety", enrich.ErrContentBlocked)
		}
		return resp.Text(), nil
	}

	return e, nil
}

// newEnricherCore builds an Enricher without a live client. Tests attach
// their own generate function.
func newEnricherCore(logger *slog.Logger, cfg config.LLMConfig) (*Enricher, error) {
	titleTmpl, err := template.New("title").Parse(titlePromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse title template: %v", enrich.ErrInvalidConfig, err)
	}

	narrativeTmpl, err := template.New("narrative").Parse(narrativePromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse narrative template: %v", enrich.ErrInvalidConfig, err)
	}

	return &Enricher{
		logger:            logger.With("component", "gemini_enricher"),
		config:            cfg,
		titleTemplate:     titleTmpl,
		narrativeTemplate: narrativeTmpl,
		model:             cfg.ModelName,
	}, nil
}

// GenerateTitle implements enrich.Enricher.
func (e *Enricher) GenerateTitle(ctx context.Context, text string) (string, error) {
	return e.run(ctx, e.titleTemplate, text)
}

// RewriteNarrative implements enrich.Enricher.
func (e *Enricher) RewriteNarrative(ctx context.Context, text string) (string, error) {
	return e.run(ctx, e.narrativeTemplate, text)
}

func (e *Enricher) run(ctx context.Context, tmpl *template.Template, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty input text", enrich.ErrContentRejected)
	}

	var promptBuffer bytes.Buffer
	if err := tmpl.Execute(&promptBuffer, promptData{Text: text}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	out, err := e.callWithRetry(ctx, promptBuffer.String())
	if err != nil {
		return "", err
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty model output", enrich.ErrInvalidResponse)
	}
	return out, nil
}

// callWithRetry calls the Gemini API with exponential backoff and jitter
// for transient failures. Permanent errors (safety blocks, malformed
// responses, rejected content) are returned immediately without retrying.
func (e *Enricher) callWithRetry(ctx context.Context, prompt string) (string, error) {
	maxRetries := e.config.MaxRetries
	baseDelaySeconds := e.config.RetryDelaySeconds
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if maxRetries < 0 {
		maxRetries = 3
	}
	if baseDelaySeconds < 1 {
		baseDelaySeconds = 2
	}

	for attempt := 0; ; attempt++ {
		e.logger.DebugContext(ctx, "calling Gemini API",
			"model", e.model,
			"attempt", attempt+1,
			"max_attempts", maxRetries+1)

		out, err := e.generate(ctx, e.model, prompt)
		if err == nil {
			return out, nil
		}

		e.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attempt+1,
			"error", err)

		if enrich.IsTerminal(err) || errors.Is(err, enrich.ErrInvalidResponse) {
			return "", err
		}

		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				enrich.ErrTransient, maxRetries, err)
		}

		// delay = baseDelay * 2^attempt * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitterFactor * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", enrich.ErrTransient, ctx.Err())
		}
	}
}
