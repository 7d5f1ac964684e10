// Package worker implements the per-kind processing workers the
// dispatcher invokes after claiming a job. Workers are stateless and
// idempotent: re-running one simply overwrites the enrichment outputs
// with an equivalent or refreshed result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/enrich"
)

// minMeaningfulLength is the minimum trimmed text length a memory must
// carry to be worth an enrichment call.
const minMeaningfulLength = 10

// Worker processes exactly one memory: fetch, validate, enrich, persist
// outputs. The dispatcher finalizes the job based on the returned error.
type Worker interface {
	// Process enriches the memory with the given ID. A TerminalError
	// (or an error the enrich package classifies as terminal) tells the
	// dispatcher not to retry; any other error is retryable.
	Process(ctx context.Context, memoryID uuid.UUID) error
}

// TerminalError marks a worker failure that can never succeed on retry,
// such as rejected content. The dispatcher finalizes these as failed
// without consuming further attempts.
type TerminalError struct {
	Err error
}

// Error implements the error interface for TerminalError.
func (e *TerminalError) Error() string {
	return fmt.Sprintf("terminal worker failure: %v", e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Terminal wraps err as a TerminalError. A nil err returns nil.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// IsTerminal reports whether err should not be retried, either because
// a worker marked it terminal or because the enrichment layer did.
func IsTerminal(err error) bool {
	var terminal *TerminalError
	return errors.As(err, &terminal) || enrich.IsTerminal(err)
}

// ErrUnknownKind is returned when no worker is registered for a kind.
var ErrUnknownKind = errors.New("no worker registered for memory kind")

// Registry maps memory kinds to their workers.
type Registry struct {
	workers map[domain.MemoryKind]Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[domain.MemoryKind]Worker)}
}

// Register binds a worker to a memory kind, replacing any previous binding.
func (r *Registry) Register(kind domain.MemoryKind, w Worker) {
	r.workers[kind] = w
}

// ForKind returns the worker registered for the given kind.
func (r *Registry) ForKind(kind domain.MemoryKind) (Worker, error) {
	w, ok := r.workers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return w, nil
}

// validateContent rejects input too short to enrich meaningfully.
// The rejection is terminal: the same text will never pass later.
func validateContent(text string) error {
	if len([]rune(strings.TrimSpace(text))) < minMeaningfulLength {
		return Terminal(fmt.Errorf("%w: text shorter than %d characters",
			enrich.ErrContentRejected, minMeaningfulLength))
	}
	return nil
}
