package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devblog/api/internal/ratelimit"
)

const testToken = "123456:ABC-secret"

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestSendPostsHTMLMessage(t *testing.T) {
	var got sendMessageRequest
	var path string
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":4242}}`))
	})

	client := NewClient(Config{BotToken: testToken, APIBase: server.URL}, nil, nil)
	result := client.Send(context.Background(), Message{ChatID: "-100123", Text: "<b>hi</b>"})

	assert.True(t, result.Sent())
	assert.Equal(t, "4242", result.MessageID)
	assert.Equal(t, "/bot"+testToken+"/sendMessage", path)
	assert.Equal(t, sendMessageRequest{ChatID: "-100123", Text: "<b>hi</b>", ParseMode: "HTML", DisableWebPagePreview: true}, got)
}

func TestSendPrefersRouteToken(t *testing.T) {
	var path string
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	client := NewClient(Config{BotToken: testToken, APIBase: server.URL}, nil, nil)
	result := client.Send(context.Background(), Message{ChatID: "1", Text: "x", BotToken: "999:route"})

	require.True(t, result.Sent())
	assert.Equal(t, "/bot999:route/sendMessage", path)
}

func TestSendWithoutTokenFailsBeforeLimiter(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	limiter := ratelimit.NewMemoryLimiter(1)

	client := NewClient(Config{APIBase: server.URL}, limiter, nil)
	result := client.Send(context.Background(), Message{ChatID: "1", Text: "x"})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, FailureConfig, result.Failure)
	assert.Equal(t, "Telegram bot token not configured", result.Detail)
	assert.Zero(t, atomic.LoadInt32(calls))
	assert.Zero(t, limiter.Len())
}

func TestSendRateLimitedSkipsNetwork(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemoryLimiter(1).WithClock(func() time.Time { return now })

	client := NewClient(Config{BotToken: testToken, APIBase: server.URL}, limiter, nil)
	first := client.Send(context.Background(), Message{ChatID: "-100123", Text: "one"})
	second := client.Send(context.Background(), Message{ChatID: "-100123", Text: "two"})

	assert.True(t, first.Sent())
	assert.Equal(t, StatusRateLimited, second.Status)
	assert.Greater(t, second.RetryAfter, time.Duration(0))
	assert.Equal(t, "Rate limit exceeded. Retry after 60s", second.Detail)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

type denyingLimiter struct{ retryAfter time.Duration }

func (l denyingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfter: l.retryAfter}, nil
}

func TestSendRateLimitedRoundsRetryHintUp(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	client := NewClient(Config{BotToken: testToken, APIBase: server.URL}, denyingLimiter{retryAfter: 300 * time.Millisecond}, nil)
	result := client.Send(context.Background(), Message{ChatID: "-100123", Text: "x"})

	assert.Equal(t, StatusRateLimited, result.Status)
	assert.Equal(t, 300*time.Millisecond, result.RetryAfter)
	assert.Equal(t, "Rate limit exceeded. Retry after 1s", result.Detail)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestSendProceedsWhenLimiterErrors(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	})

	client := NewClient(Config{BotToken: testToken, APIBase: server.URL}, brokenLimiter{}, nil)
	result := client.Send(context.Background(), Message{ChatID: "1", Text: "x"})
	assert.True(t, result.Sent())
}

func TestSendClassifiesDestinationErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		detail  string
	}{
		{
			name: "ok false",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: message text is empty"}`))
			},
			detail: "Bad Request: message text is empty",
		},
		{
			name: "ok false without description",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"ok":false}`))
			},
			detail: "Unknown Telegram error",
		},
		{
			name: "http error with description",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			},
			detail: "HTTP 400: Bad Request: chat not found",
		},
		{
			name: "http error with plain body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("upstream unavailable"))
			},
			detail: "HTTP 502: upstream unavailable",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server, _ := newTestServer(t, tc.handler)
			result := NewClient(Config{BotToken: testToken, APIBase: server.URL}, nil, nil).
				Send(context.Background(), Message{ChatID: "1", Text: "x"})

			assert.Equal(t, StatusFailed, result.Status)
			assert.Equal(t, FailureDestination, result.Failure)
			assert.Equal(t, tc.detail, result.Detail)
		})
	}
}

func TestSendMapsTelegramFloodControl(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 17","parameters":{"retry_after":17}}`))
	})

	result := NewClient(Config{BotToken: testToken, APIBase: server.URL}, nil, nil).
		Send(context.Background(), Message{ChatID: "1", Text: "x"})

	assert.Equal(t, StatusRateLimited, result.Status)
	assert.Equal(t, 17*time.Second, result.RetryAfter)
	assert.Equal(t, "Rate limit exceeded. Retry after 17s", result.Detail)
}

func TestSendTimeout(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})

	result := NewClient(Config{BotToken: testToken, APIBase: server.URL, Timeout: 50 * time.Millisecond}, nil, nil).
		Send(context.Background(), Message{ChatID: "1", Text: "x"})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, FailureTimeout, result.Failure)
	assert.Equal(t, "Telegram request timeout", result.Detail)
}

func TestSendTransportErrorHidesToken(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	result := NewClient(Config{BotToken: testToken, APIBase: base}, nil, nil).
		Send(context.Background(), Message{ChatID: "1", Text: "x"})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, FailureTransport, result.Failure)
	assert.Contains(t, result.Detail, "Request error:")
	assert.NotContains(t, result.Detail, testToken)
}
