package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatrelay/chatrelay/internal/ai"
	"github.com/chatrelay/chatrelay/internal/chat"
	"github.com/chatrelay/chatrelay/internal/httpapi"
	"github.com/chatrelay/chatrelay/internal/transcript"
	"github.com/gin-gonic/gin"
)

type scriptedProvider struct{ chunks []string }

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message, opts ai.Options) (string, error) {
	_ = ctx
	_ = messages
	_ = opts
	var out string
	for _, c := range p.chunks {
		out += c
	}
	return out, nil
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []ai.Message, opts ai.Options) (<-chan string, <-chan error) {
	_ = ctx
	_ = messages
	_ = opts
	chunks := make(chan string, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, c := range p.chunks {
			chunks <- c
		}
	}()
	return chunks, errs
}

func newFastClient(baseURL string) *Client {
	c := New(baseURL)
	c.BackoffBase = time.Millisecond
	return c
}

func TestSend_RetriesRetryableStatusOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := transcript.NewMemoryStore()
	mgr := chat.NewManager(store, &scriptedProvider{chunks: []string{"pong"}}, ai.DefaultOptions(), chat.DefaultHistoryLimit, nil)
	router := httpapi.NewRouter(mgr)

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		router.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := newFastClient(srv.URL)
	rc, _, err := c.Send(context.Background(), "r1", "ping")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	body, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "pong" {
		t.Fatalf("stream = %q", body)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 transport calls (503 then 200), got %d", n)
	}

	// exactly one logical delivery: one user/assistant pair in history
	stored, _ := store.Get(context.Background(), "r1")
	if len(stored) != 2 {
		t.Fatalf("expected 2 history entries, got %v", stored)
	}
}

func TestSend_DoesNotRetryValidationError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"message is required"}`))
	}))
	defer srv.Close()

	c := newFastClient(srv.URL)
	_, _, err := c.Send(context.Background(), "s", "")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("400 must not be retried, got %d calls", n)
	}
}

func TestSend_ExhaustedRetryBudget(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newFastClient(srv.URL)
	c.MaxRetries = 2
	_, _, err := c.Send(context.Background(), "s", "hi")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected terminal 502, got %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("expected initial attempt + 2 retries, got %d", n)
	}
}

func TestSend_TimeoutIsDistinctAndNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(250 * time.Millisecond)
	}))
	defer srv.Close()

	c := newFastClient(srv.URL)
	c.Timeout = 30 * time.Millisecond
	_, _, err := c.Send(context.Background(), "s", "hi")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("timeout must not be retried, got %d calls", n)
	}
}

func TestSend_AbortReportsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(250 * time.Millisecond)
	}))
	defer srv.Close()

	c := newFastClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _, err := c.Send(ctx, "s", "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHealth_TriState(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"timestamp":1}`))
	}))
	defer healthy.Close()

	if got := newFastClient(healthy.URL).Health(context.Background()); got != HealthReachable {
		t.Fatalf("healthy server: state = %v", got)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer broken.Close()

	if got := newFastClient(broken.URL).Health(context.Background()); got != HealthOffline {
		t.Fatalf("broken server: state = %v", got)
	}

	gone := newFastClient("http://127.0.0.1:1")
	gone.Timeout = 100 * time.Millisecond
	if got := gone.Health(context.Background()); got != HealthOffline {
		t.Fatalf("unreachable server: state = %v", got)
	}
}
