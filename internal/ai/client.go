package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"devblog/api/internal/store"
)

const (
	DefaultURL     = "https://api.openai.com/v1/responses"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 20 * time.Second

	maxOutputTokens = 500
	temperature     = 0.2
	maxErrorBody    = 512
)

type Config struct {
	APIKey  string
	Model   string
	URL     string
	Timeout time.Duration
}

// Client composes posts through the OpenAI Responses API.
type Client struct {
	apiKey string
	model  string
	url    string
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey: strings.TrimSpace(cfg.APIKey),
		model:  cfg.Model,
		url:    cfg.URL,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("ai"),
	}
}

type request struct {
	Model           string  `json:"model"`
	Input           string  `json:"input"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	Temperature     float64 `json:"temperature"`
}

// Compose returns the generated post text. Every failure is a
// *GenerationError; a blank result is reported as KindEmpty.
func (c *Client) Compose(ctx context.Context, project store.Project, commits []store.CommitEvent) (string, error) {
	if c.apiKey == "" {
		return "", &GenerationError{Kind: KindNotConfigured, Err: errors.New("OpenAI API key not configured")}
	}

	body, err := json.Marshal(request{
		Model:           c.model,
		Input:           BuildPrompt(project, commits),
		MaxOutputTokens: maxOutputTokens,
		Temperature:     temperature,
	})
	if err != nil {
		return "", &GenerationError{Kind: KindTransport, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", &GenerationError{Kind: KindTransport, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", &GenerationError{Kind: KindTimeout, Err: err}
		}
		return "", &GenerationError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return "", &GenerationError{Kind: KindTimeout, Err: err}
		}
		return "", &GenerationError{Kind: KindTransport, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &GenerationError{Kind: KindStatus, StatusCode: resp.StatusCode, Err: errors.New(truncate(string(payload), maxErrorBody))}
	}

	text, err := ExtractText(payload)
	if err != nil {
		return "", err
	}

	c.logger.Debug("AI composition succeeded",
		zap.String("repo", project.RepoFullName),
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
	)
	return text, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
