// Package client is a Go client for the chat relay: it sends user turns,
// streams the reply, and applies the retry/timeout discipline the service
// expects from callers.
package client

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

// ErrTimeout is the terminal error for a request that exceeded the configured
// timeout. Timeouts are never retried as network errors.
var ErrTimeout = errors.New("client: request timed out")

// StatusError reports a non-retryable HTTP failure with the server's error
// envelope when one was readable.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("client: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("client: status %d", e.StatusCode)
}

const (
	DefaultTimeout     = 60 * time.Second
	DefaultMaxRetries  = 2
	DefaultBackoffBase = 250 * time.Millisecond
)

type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTPClient:  &http.Client{},
		Timeout:     DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
		BackoffBase: DefaultBackoffBase,
	}
}

type sendRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// retryable statuses mirror the service's transient failure modes.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Send posts one user message and returns the live reply stream plus the
// session id the server acknowledged. Retries happen before any stream is
// returned, so the caller observes at most one logical delivery.
func (c *Client) Send(ctx context.Context, sessionID, message string) (io.ReadCloser, string, error) {
	body, err := json.Marshal(sendRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return nil, "", err
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.BackoffBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}

		rc, sid, err := c.attempt(ctx, body)
		if err == nil {
			return rc, sid, nil
		}
		if errors.Is(err, ErrTimeout) || ctx.Err() != nil {
			// distinct terminal outcome; aborts are not network errors
			return nil, "", err
		}
		var se *StatusError
		if errors.As(err, &se) && !retryableStatus(se.StatusCode) {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", lastErr
}

func (c *Client) attempt(ctx context.Context, body []byte) (io.ReadCloser, string, error) {
	actx := ctx
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	release := func() {
		if cancel != nil {
			cancel()
		}
	}

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.BaseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		release()
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		defer release()
		if actx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, "", ErrTimeout
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", err
	}

	if resp.StatusCode != http.StatusOK {
		msg := readErrorEnvelope(resp.Body)
		resp.Body.Close()
		release()
		return nil, "", &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	return &cancelReadCloser{rc: resp.Body, cancel: release}, resp.Header.Get("X-Session-ID"), nil
}

// cancelReadCloser ties the attempt's timeout context to the stream lifetime.
type cancelReadCloser struct {
	rc     io.ReadCloser
	cancel func()
}

func (c *cancelReadCloser) Read(p []byte) (int, error) { return c.rc.Read(p) }

func (c *cancelReadCloser) Close() error {
	err := c.rc.Close()
	c.cancel()
	return err
}

func readErrorEnvelope(r io.Reader) string {
	var env struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	raw, err := io.ReadAll(io.LimitReader(r, 4*1024))
	if err != nil {
		return ""
	}
	if json.Unmarshal(raw, &env) != nil {
		return strings.TrimSpace(string(raw))
	}
	if env.Details != "" {
		return env.Error + ": " + env.Details
	}
	return env.Error
}

// HealthState is the tri-state reachability indicator.
type HealthState int

const (
	HealthChecking HealthState = iota
	HealthReachable
	HealthOffline
)

func (s HealthState) String() string {
	switch s {
	case HealthReachable:
		return "reachable"
	case HealthOffline:
		return "offline"
	default:
		return "checking"
	}
}

// Health probes the health endpoint once. Any failure means offline; only a
// 200 with ok:true counts as reachable.
func (c *Client) Health(ctx context.Context) HealthState {
	actx := ctx
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(actx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return HealthOffline
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return HealthOffline
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthOffline
	}
	var body struct {
		OK bool `json:"ok"`
	}
	if json.NewDecoder(resp.Body).Decode(&body) != nil || !body.OK {
		return HealthOffline
	}
	return HealthReachable
}
