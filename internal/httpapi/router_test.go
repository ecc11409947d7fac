package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatrelay/chatrelay/internal/ai"
	"github.com/chatrelay/chatrelay/internal/chat"
	"github.com/chatrelay/chatrelay/internal/transcript"
	"github.com/gin-gonic/gin"
)

type stubProvider struct {
	chunks []string
	err    error
}

func (p *stubProvider) Chat(ctx context.Context, messages []ai.Message, opts ai.Options) (string, error) {
	_ = ctx
	_ = messages
	_ = opts
	if p.err != nil {
		return "", p.err
	}
	return strings.Join(p.chunks, ""), nil
}

func (p *stubProvider) StreamChat(ctx context.Context, messages []ai.Message, opts ai.Options) (<-chan string, <-chan error) {
	_ = ctx
	_ = messages
	_ = opts
	chunks := make(chan string, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		if p.err != nil {
			errs <- p.err
			return
		}
		for _, c := range p.chunks {
			chunks <- c
		}
	}()
	return chunks, errs
}

func newTestRouter(prov ai.Provider) (*gin.Engine, *transcript.MemoryStore) {
	gin.SetMode(gin.TestMode)
	store := transcript.NewMemoryStore()
	mgr := chat.NewManager(store, prov, ai.DefaultOptions(), chat.DefaultHistoryLimit, nil)
	return NewRouter(mgr), store
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth_IndependentOfBackends(t *testing.T) {
	// a provider that always fails must not matter
	r, _ := newTestRouter(&stubProvider{err: errors.New("down")})

	for _, path := range []string{"/health", "/api/health"} {
		w := doJSON(t, r, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, w.Code)
		}
		var body struct {
			OK        bool  `json:"ok"`
			Timestamp int64 `json:"timestamp"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		if !body.OK || body.Timestamp == 0 {
			t.Fatalf("%s: body = %s", path, w.Body.String())
		}
	}
}

func TestChat_SessionVariantStreamsText(t *testing.T) {
	r, store := newTestRouter(&stubProvider{chunks: []string{"hel", "lo ", "there"}})

	w := doJSON(t, r, http.MethodPost, "/chat", `{"message":"hi","sessionId":"s1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type = %q", ct)
	}
	if got := w.Body.String(); got != "hello there" {
		t.Fatalf("stream = %q", got)
	}

	stored, _ := store.Get(context.Background(), "s1")
	if len(stored) != 2 || stored[1].Content != "hello there" {
		t.Fatalf("transcript not committed: %v", stored)
	}
}

func TestChat_AssignsSessionIDWhenMissing(t *testing.T) {
	r, _ := newTestRouter(&stubProvider{chunks: []string{"ok"}})

	w := doJSON(t, r, http.MethodPost, "/chat", `{"message":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Session-ID") == "" {
		t.Fatal("expected a server-assigned session id header")
	}
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	r, _ := newTestRouter(&stubProvider{chunks: []string{"never"}})

	for _, body := range []string{`{"sessionId":"s1"}`, `{"message":"   ","sessionId":"s1"}`} {
		w := doJSON(t, r, http.MethodPost, "/chat", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d", body, w.Code)
		}
		if !strings.Contains(w.Body.String(), "error") {
			t.Fatalf("body %s: missing error envelope: %s", body, w.Body.String())
		}
	}
}

func TestChat_GatewayFailureIs502(t *testing.T) {
	r, _ := newTestRouter(&stubProvider{err: errors.New("upstream exploded")})

	w := doJSON(t, r, http.MethodPost, "/chat", `{"message":"hi","sessionId":"s1"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == "" || !strings.Contains(body.Details, "upstream exploded") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestChat_StatelessVariant(t *testing.T) {
	r, store := newTestRouter(&stubProvider{chunks: []string{"  stateless reply  "}})

	w := doJSON(t, r, http.MethodPost, "/api/chat",
		`{"messages":[{"role":"user","content":"hi"}],"model":"llama3:8b","temperature":"not-a-number","top_p":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var body struct {
		Model    string `json:"model"`
		Response string `json:"response"`
		Raw      string `json:"raw"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Model != "llama3:8b" {
		t.Fatalf("model = %q", body.Model)
	}
	if body.Response != "stateless reply" || body.Raw != "  stateless reply  " {
		t.Fatalf("response = %q raw = %q", body.Response, body.Raw)
	}

	// stateless calls never touch session history
	stored, _ := store.Get(context.Background(), "")
	if len(stored) != 0 {
		t.Fatalf("stateless variant must not persist: %v", stored)
	}
}

func TestChat_StatelessRejectsBadTurns(t *testing.T) {
	r, _ := newTestRouter(&stubProvider{chunks: []string{"x"}})

	cases := []string{
		`{"messages":[]}`,
		`{"messages":[{"role":"robot","content":"hi"}]}`,
		`{"messages":[{"role":"user","content":"  "}]}`,
	}
	for _, body := range cases {
		w := doJSON(t, r, http.MethodPost, "/chat", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d", body, w.Code)
		}
	}
}

func TestRouting_UnknownPathAndMethod(t *testing.T) {
	r, _ := newTestRouter(&stubProvider{})

	if w := doJSON(t, r, http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown path: status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/chat", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("bad method: status = %d", w.Code)
	}
}

func TestCORS_PreflightAndHeaders(t *testing.T) {
	r, _ := newTestRouter(&stubProvider{chunks: []string{"ok"}})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("simple request allow-origin = %q", got)
	}
}
