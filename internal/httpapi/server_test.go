package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/chatcore/internal/audit"
	"github.com/haasonsaas/chatcore/internal/authctx"
	"github.com/haasonsaas/chatcore/internal/convo"
	"github.com/haasonsaas/chatcore/internal/llm"
	"github.com/haasonsaas/chatcore/internal/orchestrator"
	"github.com/haasonsaas/chatcore/internal/ratelimit"
	"github.com/haasonsaas/chatcore/internal/tools"
)

type staticProvider struct {
	chunks []llm.Chunk
}

func (p *staticProvider) Name() string { return "static" }

func (p *staticProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T) (*Server, *authctx.Service) {
	t.Helper()
	store := convo.NewMemoryStore(8000)
	registry := tools.NewRegistry()
	logger, err := audit.NewLogger(audit.Config{Enabled: false})
	if err != nil {
		t.Fatalf("audit.NewLogger: %v", err)
	}
	router := tools.NewRouter(registry, logger)
	provider := &staticProvider{chunks: []llm.Chunk{{ContentDelta: "hello there", FinishReason: "stop"}}}
	orch := orchestrator.NewOrchestrator(store, registry, router, provider, nil, orchestrator.DefaultConfig())

	authService := authctx.NewService("test-secret", time.Hour)
	throttle := ratelimit.NewUserThrottle(
		ratelimit.Config{RequestsPerSecond: 100, BurstSize: 100, Enabled: true},
		ratelimit.Config{RequestsPerSecond: 100, BurstSize: 100, Enabled: true},
	)
	return NewServer(orch, store, authService, throttle, nil), authService
}

func authedRequest(t *testing.T, auth *authctx.Service, method, path string, body []byte) *http.Request {
	t.Helper()
	token, err := auth.Issue("user-1", "user1@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandleChat_StreamsSSEFrames(t *testing.T) {
	server, auth := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"utterance": "help me track a flight"})
	req := authedRequest(t, auth, http.MethodPost, "/v1/chat", body)
	rec := httptest.NewRecorder()

	server.Mount().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
	if xb := rec.Header().Get("X-Accel-Buffering"); xb != "no" {
		t.Errorf("X-Accel-Buffering = %q, want no", xb)
	}
	if !strings.Contains(rec.Body.String(), "data: ") {
		t.Errorf("body has no SSE frames: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"type":"done"`) {
		t.Errorf("body missing done chunk: %s", rec.Body.String())
	}
}

func TestHandleChat_RejectsMissingAuth(t *testing.T) {
	server, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"utterance": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.Mount().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleChat_RejectsEmptyUtterance(t *testing.T) {
	server, auth := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"utterance": ""})
	req := authedRequest(t, auth, http.MethodPost, "/v1/chat", body)
	rec := httptest.NewRecorder()

	server.Mount().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleChat_RateLimited(t *testing.T) {
	server, auth := newTestServer(t)
	server.throttle = ratelimit.NewUserThrottle(
		ratelimit.Config{RequestsPerSecond: 0.001, BurstSize: 1, Enabled: true},
		ratelimit.Config{RequestsPerSecond: 100, BurstSize: 100, Enabled: true},
	)

	body, _ := json.Marshal(map[string]any{"utterance": "hi"})

	req1 := authedRequest(t, auth, http.MethodPost, "/v1/chat", body)
	rec1 := httptest.NewRecorder()
	server.Mount().ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec1.Code)
	}

	req2 := authedRequest(t, auth, http.MethodPost, "/v1/chat", body)
	rec2 := httptest.NewRecorder()
	server.Mount().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec2.Code)
	}
	if rec2.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
}

func TestConversations_CreateListGetDelete(t *testing.T) {
	server, auth := newTestServer(t)

	createBody, _ := json.Marshal(map[string]any{"title": "Paris trip"})
	createReq := authedRequest(t, auth, http.MethodPost, "/v1/conversations", createBody)
	createRec := httptest.NewRecorder()
	server.Mount().ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201, body=%s", createRec.Code, createRec.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("created conversation has no id: %v", created)
	}

	listReq := authedRequest(t, auth, http.MethodGet, "/v1/conversations", nil)
	listRec := httptest.NewRecorder()
	server.Mount().ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", listRec.Code)
	}

	getReq := authedRequest(t, auth, http.MethodGet, "/v1/conversations/"+id, nil)
	getRec := httptest.NewRecorder()
	server.Mount().ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200, body=%s", getRec.Code, getRec.Body.String())
	}

	delReq := authedRequest(t, auth, http.MethodDelete, "/v1/conversations/"+id, nil)
	delRec := httptest.NewRecorder()
	server.Mount().ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", delRec.Code)
	}

	getAfterDeleteReq := authedRequest(t, auth, http.MethodGet, "/v1/conversations/"+id, nil)
	getAfterDeleteRec := httptest.NewRecorder()
	server.Mount().ServeHTTP(getAfterDeleteRec, getAfterDeleteReq)
	if getAfterDeleteRec.Code != http.StatusNotFound {
		t.Errorf("get-after-delete status = %d, want 404", getAfterDeleteRec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Mount().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
