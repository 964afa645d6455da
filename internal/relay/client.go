// Package relay issues the outbound HTTP call to the agent backend.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorExcerpt = 200

// BackendError is returned when the agent backend answers with a
// non-200 status.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// TimeoutError is returned when the backend does not answer within the
// client timeout.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend timed out after %s: %v", e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Client forwards message text to the agent backend and parses the reply.
// It never retries: a retry against a slow backend could overlap with
// the next inbound message and break the single-in-flight invariant.
type Client struct {
	baseURL string
	token   string
	source  string
	http    *http.Client
}

// NewClient creates a relay client for the given backend.
func NewClient(baseURL, token, source string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		source:  source,
		http:    &http.Client{Timeout: timeout},
	}
}

type relayRequest struct {
	Message string `json:"message"`
	Source  string `json:"source"`
}

type relayResponse struct {
	Response string `json:"response"`
	Message  string `json:"message"`
}

// Relay POSTs message to the backend and returns its reply text.
// On 200 the JSON "response" field is preferred, then "message", then
// the raw body. Non-200 yields a *BackendError with a body excerpt;
// an elapsed timeout yields a *TimeoutError.
func (c *Client) Relay(ctx context.Context, message string) (string, error) {
	payload, err := json.Marshal(relayRequest{Message: message, Source: c.source})
	if err != nil {
		return "", fmt.Errorf("marshal relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/message", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", &TimeoutError{Timeout: c.http.Timeout, Err: err}
		}
		return "", fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read relay response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &BackendError{StatusCode: resp.StatusCode, Body: shorten(string(body), maxErrorExcerpt)}
	}

	var parsed relayResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Response != "" {
			return parsed.Response, nil
		}
		if parsed.Message != "" {
			return parsed.Message, nil
		}
	}
	return string(body), nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func shorten(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
