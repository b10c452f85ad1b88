package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"devblog/api/internal/store"
)

// GitHub caps webhook payloads at 25 MB.
const maxWebhookBody = 25 << 20

type HTTPServer struct {
	service *Service
	metrics http.Handler
	logger  *zap.Logger
}

func NewHTTPServer(service *Service, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{
		service: service,
		metrics: promhttp.Handler(),
		logger:  logger.Named("http"),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/webhook/github" {
		s.handleGitHubWebhook(w, r)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && (r.URL.Path == "/health" || r.URL.Path == "/api/health") {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"version":     Version,
			"environment": s.service.cfg.AppEnv,
		})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/commits/search" {
		s.handleCommitSearch(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Payload too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read body", nil)
		return
	}

	result, err := s.service.HandlePush(r.Context(), PushRequest{
		Event:      strings.TrimSpace(r.Header.Get("X-GitHub-Event")),
		Signature:  r.Header.Get("X-Hub-Signature-256"),
		DeliveryID: strings.TrimSpace(r.Header.Get("X-GitHub-Delivery")),
		Body:       body,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("Webhook processing failed", zap.String("request_id", requestID(r.Context())), zap.Error(err))
		}
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, pushResponse(result))
}

func pushResponse(result PushResult) map[string]any {
	response := map[string]any{"status": result.Status}
	if result.Status == StatusNoCommits {
		response["commits_received"] = 0
		response["commits_processed"] = 0
		response["message_sent"] = false
		return response
	}
	if result.Status != StatusSuccess {
		return response
	}
	response["commits_received"] = result.CommitsReceived
	response["commits_processed"] = result.CommitsProcessed
	response["commits_filtered"] = result.CommitsFiltered
	response["message_sent"] = result.MessageSent
	if result.DeliveryStatus != "" {
		response["delivery_status"] = result.DeliveryStatus
	}
	if result.RetryAfter > 0 {
		response["retry_after_seconds"] = result.RetryAfter.Seconds()
	}
	if result.Error != "" {
		response["error"] = result.Error
	}
	return response
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ready(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleCommitSearch(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		status, code, message, details := mapError(errUnauthorized)
		writeError(w, status, code, message, details)
		return
	}

	query := r.URL.Query()
	limit := 20
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", nil)
			return
		}
		limit = min(parsed, 100)
	}

	response, err := s.service.SearchCommits(r.Context(), strings.TrimSpace(query.Get("q")), strings.TrimSpace(query.Get("project")), limit)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// adminAuthorized requires X-Admin-Token to match ADMIN_API_KEY. An empty key
// disables the admin surface.
func (s *HTTPServer) adminAuthorized(r *http.Request) bool {
	expected := s.service.cfg.AdminAPIKey
	provided := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("Cache-Control", "no-store")
		writer.Header().Set("Content-Type", "application/json")
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		s.logger.Info("Request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
