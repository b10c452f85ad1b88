// Package telegram delivers digests through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"devblog/api/internal/ratelimit"
)

const (
	DefaultAPIBase = "https://api.telegram.org"
	DefaultTimeout = 10 * time.Second

	parseModeHTML = "HTML"
	maxErrorBody  = 512
)

type Status string

const (
	StatusSent        Status = "sent"
	StatusRateLimited Status = "rate_limited"
	StatusFailed      Status = "failed"
)

// Failure classifies a StatusFailed result.
type Failure string

const (
	FailureConfig      Failure = "config"
	FailureTimeout     Failure = "timeout"
	FailureTransport   Failure = "transport"
	FailureDestination Failure = "destination"
)

type Message struct {
	ChatID string
	Text   string
	// BotToken overrides the client's token for this message when set.
	BotToken string
}

// Result is the classified outcome of one send attempt.
type Result struct {
	Status     Status
	MessageID  string
	RetryAfter time.Duration
	Failure    Failure
	Detail     string
}

func (r Result) Sent() bool { return r.Status == StatusSent }

type Config struct {
	BotToken string
	APIBase  string
	Timeout  time.Duration
}

type Client struct {
	token   string
	base    string
	http    *http.Client
	limiter ratelimit.Limiter
	logger  *zap.Logger
}

// NewClient returns a client that consults limiter, keyed by chat id, before
// every request. A nil limiter admits everything.
func NewClient(cfg Config, limiter ratelimit.Limiter, logger *zap.Logger) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:   strings.TrimSpace(cfg.BotToken),
		base:    strings.TrimRight(cfg.APIBase, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger.Named("telegram"),
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send makes exactly one delivery attempt. It never retries.
func (c *Client) Send(ctx context.Context, msg Message) Result {
	token := strings.TrimSpace(msg.BotToken)
	if token == "" {
		token = c.token
	}
	if token == "" {
		return c.record(Result{Status: StatusFailed, Failure: FailureConfig, Detail: "Telegram bot token not configured"}, 0)
	}

	decision, err := c.limiter.Allow(ctx, msg.ChatID)
	if err != nil {
		c.logger.Warn("Rate limiter unavailable, sending without limit",
			zap.String("chat_id", msg.ChatID),
			zap.Error(err),
		)
	} else if !decision.Allowed {
		return c.record(rateLimited(decision.RetryAfter), 0)
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                msg.ChatID,
		Text:                  msg.Text,
		ParseMode:             parseModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return c.record(Result{Status: StatusFailed, Failure: FailureTransport, Detail: fmt.Sprintf("Request error: %v", err)}, 0)
	}

	endpoint := c.base + "/bot" + token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return c.record(Result{Status: StatusFailed, Failure: FailureTransport, Detail: scrub(fmt.Sprintf("Request error: %v", err), token)}, 0)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return c.record(transportFailure(err, token), time.Since(start))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return c.record(transportFailure(err, token), elapsed)
	}

	var parsed apiResponse
	decodeErr := json.Unmarshal(payload, &parsed)

	if resp.StatusCode == http.StatusTooManyRequests && decodeErr == nil && parsed.Parameters.RetryAfter > 0 {
		return c.record(rateLimited(time.Duration(parsed.Parameters.RetryAfter)*time.Second), elapsed)
	}
	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(payload))
		if decodeErr == nil && parsed.Description != "" {
			detail = parsed.Description
		}
		return c.record(Result{
			Status:  StatusFailed,
			Failure: FailureDestination,
			Detail:  scrub(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(detail, maxErrorBody)), token),
		}, elapsed)
	}
	if decodeErr != nil {
		return c.record(Result{Status: StatusFailed, Failure: FailureDestination, Detail: "Unreadable Telegram response: " + decodeErr.Error()}, elapsed)
	}
	if !parsed.OK {
		detail := parsed.Description
		if detail == "" {
			detail = "Unknown Telegram error"
		}
		return c.record(Result{Status: StatusFailed, Failure: FailureDestination, Detail: detail}, elapsed)
	}

	return c.record(Result{Status: StatusSent, MessageID: strconv.FormatInt(parsed.Result.MessageID, 10)}, elapsed)
}

func (c *Client) record(result Result, elapsed time.Duration) Result {
	deliveryTotal.WithLabelValues(string(result.Status)).Inc()
	if elapsed > 0 {
		deliveryDuration.WithLabelValues(string(result.Status)).Observe(elapsed.Seconds())
	}
	switch result.Status {
	case StatusSent:
		c.logger.Info("Message sent", zap.String("message_id", result.MessageID), zap.Duration("duration", elapsed))
	case StatusRateLimited:
		c.logger.Warn("Message rate limited", zap.Duration("retry_after", result.RetryAfter))
	default:
		c.logger.Error("Message delivery failed",
			zap.String("failure", string(result.Failure)),
			zap.String("detail", result.Detail),
		)
	}
	return result
}

func rateLimited(retryAfter time.Duration) Result {
	return Result{
		Status:     StatusRateLimited,
		RetryAfter: retryAfter,
		Detail:     fmt.Sprintf("Rate limit exceeded. Retry after %ds", int(math.Ceil(retryAfter.Round(time.Millisecond).Seconds()))),
	}
}

func transportFailure(err error, token string) Result {
	if isTimeout(err) {
		return Result{Status: StatusFailed, Failure: FailureTimeout, Detail: "Telegram request timeout"}
	}
	return Result{Status: StatusFailed, Failure: FailureTransport, Detail: scrub("Request error: "+err.Error(), token)}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// scrub removes the bot token, which is part of every request URL, from
// text that may be logged or stored.
func scrub(text, token string) string {
	if token == "" {
		return text
	}
	return strings.ReplaceAll(text, token, "<redacted>")
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
