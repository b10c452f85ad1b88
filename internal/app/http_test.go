package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devblog/api/internal/auth"
	"devblog/api/internal/search"
	"devblog/api/internal/store"
)

func serve(t *testing.T, handler http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	var payload map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") && rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	}
	return rr, payload
}

func webhookRequest(body []byte, event, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	return req
}

func TestWebhookStatusCodes(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	handler := NewHTTPServer(h.service, nil).Handler()
	body := pushBody(testRepo, "feat: over http")
	trailing := append(pushBody(testRepo, "fix: bug A"), []byte("}{garbage")...)

	cases := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"missing signature", webhookRequest(body, "push", ""), http.StatusUnauthorized, "MISSING_SIGNATURE"},
		{"invalid signature", webhookRequest(body, "push", "sha256=deadbeef"), http.StatusUnauthorized, "INVALID_SIGNATURE"},
		{"unknown project", webhookRequest(pushBody("acme/other", "feat: x"), "push", "sha256=00"), http.StatusNotFound, "PROJECT_NOT_FOUND"},
		{"invalid json", webhookRequest([]byte("{"), "push", "sha256=00"), http.StatusBadRequest, "INVALID_JSON"},
		{"trailing data after object", webhookRequest(trailing, "push", auth.Sign(trailing, testSecret)), http.StatusBadRequest, "INVALID_JSON"},
		{"missing repository", webhookRequest([]byte(`{"ref":"refs/heads/main"}`), "push", "sha256=00"), http.StatusBadRequest, "MISSING_REPOSITORY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, payload := serve(t, handler, tc.req)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, tc.code, payload["code"])
			assert.NotEmpty(t, payload["error"])
		})
	}
	assert.Empty(t, h.commits(t))
}

func TestWebhookSuccessResponse(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	handler := NewHTTPServer(h.service, nil).Handler()
	body := pushBody(testRepo, "fix: bug A", "wip")

	newRequest := func() *http.Request {
		req := webhookRequest(body, "push", auth.Sign(body, testSecret))
		req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
		return req
	}
	rr, payload := serve(t, handler, newRequest())

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "success", payload["status"])
	assert.EqualValues(t, 2, payload["commits_received"])
	assert.EqualValues(t, 2, payload["commits_processed"])
	assert.EqualValues(t, 1, payload["commits_filtered"])
	assert.Equal(t, true, payload["message_sent"])
	assert.Equal(t, "sent", payload["delivery_status"])
	assert.NotContains(t, payload, "error")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr, payload = serve(t, handler, newRequest())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"status": "duplicate"}, payload)
}

func TestWebhookIgnoredAndNoCommits(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	handler := NewHTTPServer(h.service, nil).Handler()

	rr, payload := serve(t, handler, webhookRequest([]byte(`{"zen":"Keep it logically awesome."}`), "ping", ""))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"status": "ignored"}, payload)

	body := pushBody(testRepo)
	rr, payload = serve(t, handler, webhookRequest(body, "push", auth.Sign(body, testSecret)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{
		"status":            "no commits",
		"commits_received":  float64(0),
		"commits_processed": float64(0),
		"message_sent":      false,
	}, payload)
}

func TestWebhookDeliveryFailureStillAcknowledged(t *testing.T) {
	h := newHarness(t, harnessOptions{perMinute: 1})
	handler := NewHTTPServer(h.service, nil).Handler()

	for i, message := range []string{"feat: first", "feat: second"} {
		body := pushBody(testRepo, message)
		rr, payload := serve(t, handler, webhookRequest(body, "push", auth.Sign(body, testSecret)))
		require.Equal(t, http.StatusOK, rr.Code)
		if i == 0 {
			continue
		}
		assert.Equal(t, false, payload["message_sent"])
		assert.Equal(t, "rate_limited", payload["delivery_status"])
		assert.EqualValues(t, 60, payload["retry_after_seconds"])
		assert.Equal(t, "Rate limit exceeded. Retry after 60s", payload["error"])
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	handler := NewHTTPServer(h.service, nil).Handler()

	big := bytes.Repeat([]byte("a"), maxWebhookBody+1)
	rr, payload := serve(t, handler, webhookRequest(big, "push", "sha256=00"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", payload["code"])
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	handler := NewHTTPServer(h.service, nil).Handler()

	for _, path := range []string{"/health", "/api/health"} {
		rr, payload := serve(t, handler, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", payload["status"])
		assert.Equal(t, Version, payload["version"])
		assert.Equal(t, "test", payload["environment"])
		assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	}
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyEndpoint(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	rr, payload := serve(t, NewHTTPServer(h.service, nil).Handler(), httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, payload["ok"])
	assert.Equal(t, "ready", payload["status"])

	h.service.checks = map[string]Pinger{
		"redis": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	}
	rr, payload = serve(t, NewHTTPServer(h.service, nil).Handler(), httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "not_ready", payload["status"])
	checks := payload["checks"].(map[string]any)
	assert.Equal(t, map[string]any{"status": "ok"}, checks["database"])
	assert.Equal(t, map[string]any{"status": "error", "error": "connection refused"}, checks["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	handler := NewHTTPServer(h.service, nil).Handler()

	body := pushBody(testRepo, "feat: counted")
	serve(t, handler, webhookRequest(body, "push", auth.Sign(body, testSecret)))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `devblog_webhook_requests_total{outcome="delivered"}`)
	assert.Contains(t, rr.Body.String(), "devblog_commits_persisted_total")
}

func TestCommitSearchEndpoint(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.service.cfg.AdminAPIKey = "admin-key"
	h.service.search = search.NewService(nil, search.NewDatabaseSearcher(h.store), nil)
	handler := NewHTTPServer(h.service, nil).Handler()

	body := pushBody(testRepo, "feat: add full text search", "fix: crash on empty query")
	_, err := h.service.HandlePush(context.Background(), signedPush(body, testSecret, ""))
	require.NoError(t, err)

	searchRequest := func(query, token string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/commits/search?"+query, nil)
		if token != "" {
			req.Header.Set("X-Admin-Token", token)
		}
		return req
	}

	rr, _ := serve(t, handler, searchRequest("q=search", ""))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr, _ = serve(t, handler, searchRequest("q=search", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, payload := serve(t, handler, searchRequest("q=SEARCH&project="+testRepo, "admin-key"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "database", payload["backend"])
	results := payload["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "feat: add full text search", results[0].(map[string]any)["message"])

	rr, payload = serve(t, handler, searchRequest("q=x&project=acme/unknown", "admin-key"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "PROJECT_NOT_FOUND", payload["code"])

	rr, _ = serve(t, handler, searchRequest("q=x&limit=abc", "admin-key"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommitSearchDisabledWithoutAdminKey(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	handler := NewHTTPServer(h.service, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/commits/search?q=x", nil)
	req.Header.Set("X-Admin-Token", "anything")
	rr, _ := serve(t, handler, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	rr, payload := serve(t, NewHTTPServer(h.service, nil).Handler(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", payload["code"])
}

func TestMapError(t *testing.T) {
	status, code, _, _ := mapError(store.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", code)

	status, code, message, _ := mapError(errors.New("db exploded: password=hunter2"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "SERVER_ERROR", code)
	assert.NotContains(t, message, "hunter2")
}
