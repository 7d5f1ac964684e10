// Package remote is the client's HTTP surface to the memories server.
// It exposes the three upload stages the sync engine drives and
// classifies failures as retryable or terminal so the engine knows
// whether to back off or give up.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Creator uploads the parts of a captured memory. CreateMemory is
// idempotent on the local ID, so the sync engine can safely repeat it
// after a crash or timeout.
type Creator interface {
	// CreateMemory creates the text record and returns the server-side
	// memory ID. Replaying the same local ID returns the original ID.
	CreateMemory(ctx context.Context, req CreateMemoryRequest) (string, error)

	// AttachAudio attaches an audio reference to an existing memory.
	AttachAudio(ctx context.Context, serverMemoryID, audioRef string) error

	// AttachMedia attaches one media reference at the given position.
	AttachMedia(ctx context.Context, serverMemoryID string, position int, mediaRef string) error
}

// CreateMemoryRequest carries the text stage of an upload.
type CreateMemoryRequest struct {
	LocalID string   `json:"client_token"`
	Kind    string   `json:"kind"`
	Text    string   `json:"text"`
	Tags    []string `json:"tags,omitempty"`
	Locale  string   `json:"locale,omitempty"`
}

// Error is a failed call to the server. StatusCode is zero for
// transport failures that never produced a response.
type Error struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: server returned %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return e.Operation + ": request failed"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the sync engine should try this call
// again. Transport failures and server errors are transient; a 4xx
// means the request itself is bad and repeating it cannot help, except
// 408 and 429 which are the server asking for a later attempt.
func (e *Error) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500
}

// IsRetryable reports whether err should be retried. Errors that did
// not come from a server call are assumed transient.
func IsRetryable(err error) bool {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Retryable()
	}
	return true
}

// Client is the HTTP implementation of Creator.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	return &Client{
		baseURL:    parsed.String(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// memoryResponse is the subset of the server's memory payload the
// client needs.
type memoryResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) CreateMemory(ctx context.Context, req CreateMemoryRequest) (string, error) {
	const op = "create memory"

	var resp memoryResponse
	err := c.doJSON(ctx, op, http.MethodPost, "/api/memories", req, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &Error{Operation: op, Message: "response missing memory ID"}
	}
	return resp.ID, nil
}

func (c *Client) AttachAudio(ctx context.Context, serverMemoryID, audioRef string) error {
	path := fmt.Sprintf("/api/memories/%s/audio", url.PathEscape(serverMemoryID))
	body := map[string]string{"audio_ref": audioRef}
	return c.doJSON(ctx, "attach audio", http.MethodPut, path, body, nil)
}

func (c *Client) AttachMedia(ctx context.Context, serverMemoryID string, position int, mediaRef string) error {
	path := fmt.Sprintf("/api/memories/%s/media/%d", url.PathEscape(serverMemoryID), position)
	body := map[string]string{"media_ref": mediaRef}
	return c.doJSON(ctx, "attach media", http.MethodPut, path, body, nil)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Operation: op, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &Error{Operation: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var serverErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&serverErr)
		return &Error{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    serverErr.Error,
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Operation: op, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}
	return nil
}
