package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"devblog/api/internal/auth"
	"devblog/api/internal/config"
	"devblog/api/internal/digest"
	"devblog/api/internal/idempotency"
	"devblog/api/internal/search"
	"devblog/api/internal/store"
	"devblog/api/internal/telegram"
)

// Version is reported by /health. Release builds override it with -ldflags.
var Version = "dev"

const (
	StatusIgnored   = "ignored"
	StatusNoCommits = "no commits"
	StatusDuplicate = "duplicate"
	StatusSuccess   = "success"

	pushEvent      = "push"
	archiveTimeout = 30 * time.Second
)

type dataStore interface {
	GetProjectByRepo(context.Context, string) (store.Project, error)
	InsertCommitEvents(context.Context, []store.CommitEvent) ([]store.CommitEvent, error)
	InsertPost(context.Context, store.Post) (store.Post, error)
	Ping(context.Context) error
}

type contentGenerator interface {
	Generate(context.Context, store.Project, []store.CommitEvent) digest.Digest
}

type messageSender interface {
	Send(context.Context, telegram.Message) telegram.Result
}

type commitSearch interface {
	Search(context.Context, search.Query) search.Response
	IndexCommits([]store.CommitEvent)
}

// Archiver stores raw webhook bodies.
type Archiver interface {
	Put(ctx context.Context, repoFullName, deliveryID string, body []byte) (string, error)
}

// Pinger is an optional dependency reported by /api/ready.
type Pinger interface {
	Ping(context.Context) error
}

// Dependencies are the collaborators of the pipeline. Store, Generator and
// Sender are required; the rest may be nil.
type Dependencies struct {
	Store     dataStore
	Generator contentGenerator
	Sender    messageSender
	Dedupe    idempotency.Store
	Archive   Archiver
	Search    commitSearch
	Checks    map[string]Pinger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	generator contentGenerator
	sender    messageSender
	dedupe    idempotency.Store
	archive   Archiver
	search    commitSearch
	checks    map[string]Pinger
	logger    *zap.Logger
	now       func() time.Time
}

func New(cfg config.Config, deps Dependencies, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		generator: deps.Generator,
		sender:    deps.Sender,
		dedupe:    deps.Dedupe,
		archive:   deps.Archive,
		search:    deps.Search,
		checks:    deps.Checks,
		logger:    logger.Named("pipeline"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PushRequest is one inbound webhook delivery as received.
type PushRequest struct {
	Event      string
	Signature  string
	DeliveryID string
	Body       []byte
}

type PushResult struct {
	Status           string
	CommitsReceived  int
	CommitsProcessed int
	CommitsFiltered  int
	MessageSent      bool
	DeliveryStatus   telegram.Status
	RetryAfter       time.Duration
	Error            string
}

// HandlePush authenticates one push delivery, persists every commit, and
// delivers a digest of the commits that pass the filter. Authentication and
// validation failures are returned as *DomainError. Delivery failures are not
// errors; they are reported in the result and in the stored post.
func (s *Service) HandlePush(ctx context.Context, req PushRequest) (PushResult, error) {
	logger := s.logger.With(zap.String("delivery_id", req.DeliveryID))

	if req.Event != pushEvent {
		logger.Info("Ignoring GitHub event", zap.String("event", req.Event))
		return s.finish(PushResult{Status: StatusIgnored}, "ignored"), nil
	}

	payload, err := decodePushPayload(req.Body)
	if err != nil {
		logger.Warn("Invalid JSON in webhook payload", zap.Int("body_bytes", len(req.Body)))
		return s.fail(err, "invalid_json")
	}
	if payload.RepoFullName == "" {
		logger.Warn("Missing repository full_name in payload")
		return s.fail(errMissingRepository, "missing_repository")
	}
	logger = logger.With(zap.String("repo", payload.RepoFullName))

	project, err := s.store.GetProjectByRepo(ctx, payload.RepoFullName)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("Project not found for repository")
		return s.fail(errProjectNotFound, "project_not_found")
	}
	if err != nil {
		return s.fail(fmt.Errorf("lookup project: %w", err), "error")
	}
	logger = logger.With(zap.String("project_id", project.ID))

	secret := project.WebhookSecret
	if secret == "" {
		secret = s.cfg.DefaultWebhookSecret
	}
	switch err := auth.VerifySignature(req.Body, req.Signature, secret); {
	case errors.Is(err, auth.ErrMissingSignature):
		logger.Warn("Missing signature header")
		return s.fail(errMissingSignature, "missing_signature")
	case err != nil:
		logger.Warn("Invalid signature", zap.Bool("secret_configured", secret != ""))
		return s.fail(errInvalidSignature, "invalid_signature")
	}

	if !s.claim(ctx, logger, req.DeliveryID) {
		logger.Info("Duplicate delivery acknowledged without processing")
		return s.finish(PushResult{Status: StatusDuplicate}, "duplicate"), nil
	}
	s.archiveBody(ctx, logger, payload.RepoFullName, req.DeliveryID, req.Body)

	if len(payload.Commits) == 0 {
		logger.Info("No commits in push")
		return s.finish(PushResult{Status: StatusNoCommits}, "no_commits"), nil
	}

	now := s.now()
	branch := branchFromRef(payload.Ref)
	events := make([]store.CommitEvent, len(payload.Commits))
	for i, entry := range payload.Commits {
		events[i] = buildCommitEvent(project.ID, branch, entry, now)
	}

	stored, err := s.store.InsertCommitEvents(ctx, events)
	if err != nil {
		s.release(ctx, logger, req.DeliveryID)
		return s.fail(fmt.Errorf("persist commits: %w", err), "error")
	}
	commitsPersistedTotal.Add(float64(len(stored)))
	if s.search != nil {
		s.search.IndexCommits(stored)
	}

	result := PushResult{
		Status:           StatusSuccess,
		CommitsReceived:  len(payload.Commits),
		CommitsProcessed: len(stored),
	}

	filtered := digest.Filter(stored)
	result.CommitsFiltered = len(filtered)
	if len(filtered) == 0 {
		logger.Info("No commits passed filters", zap.Int("processed", len(stored)))
		return s.finish(result, "filtered_out"), nil
	}

	if project.PostMode == store.PostModeDailyDigest {
		logger.Info("Route requests a daily digest; delivering per push")
	}

	content := s.generator.Generate(ctx, project, filtered)
	delivery := s.sender.Send(ctx, telegram.Message{
		ChatID:   project.TelegramChatID,
		Text:     content.Text,
		BotToken: project.TelegramBotToken,
	})
	result.MessageSent = delivery.Sent()
	result.DeliveryStatus = delivery.Status
	result.RetryAfter = delivery.RetryAfter
	if !delivery.Sent() {
		result.Error = delivery.Detail
	}

	s.recordPost(ctx, logger, project, content, delivery)

	logger.Info("Webhook processed",
		zap.Int("commits_received", result.CommitsReceived),
		zap.Int("commits_processed", result.CommitsProcessed),
		zap.Int("commits_filtered", result.CommitsFiltered),
		zap.String("content_source", content.Source),
		zap.String("delivery_status", string(delivery.Status)),
	)
	if delivery.Sent() {
		return s.finish(result, "delivered"), nil
	}
	return s.finish(result, "delivery_failed"), nil
}

func (s *Service) recordPost(ctx context.Context, logger *zap.Logger, project store.Project, content digest.Digest, delivery telegram.Result) {
	post := store.Post{
		ProjectID: project.ID,
		Source:    "github",
		Content:   content.Text,
		ContentMD: optional(content.Markdown),
		Status:    store.PostStatusSuccess,
	}
	if delivery.Sent() {
		post.TelegramMessageID = optional(delivery.MessageID)
	} else {
		post.Status = store.PostStatusError
		post.ErrorMessage = optional(delivery.Detail)
	}
	if _, err := s.store.InsertPost(ctx, post); err != nil {
		logger.Error("Failed to record post", zap.String("status", post.Status), zap.Error(err))
	}
}

// claim reports whether this delivery should be processed. Deliveries
// without an id, and dedupe backend failures, are always processed.
func (s *Service) claim(ctx context.Context, logger *zap.Logger, deliveryID string) bool {
	if s.dedupe == nil || deliveryID == "" {
		return true
	}
	claimed, err := s.dedupe.Claim(ctx, deliveryID)
	if err != nil {
		logger.Warn("Delivery dedupe unavailable", zap.Error(err))
		return true
	}
	return claimed
}

func (s *Service) release(ctx context.Context, logger *zap.Logger, deliveryID string) {
	if s.dedupe == nil || deliveryID == "" {
		return
	}
	if err := s.dedupe.Release(ctx, deliveryID); err != nil {
		logger.Warn("Failed to release delivery claim", zap.Error(err))
	}
}

func (s *Service) archiveBody(ctx context.Context, logger *zap.Logger, repo, deliveryID string, body []byte) {
	if s.archive == nil {
		return
	}
	if deliveryID == "" {
		deliveryID = fmt.Sprintf("nodelivery-%d", s.now().UnixNano())
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
		defer cancel()
		key, err := s.archive.Put(ctx, repo, deliveryID, body)
		if err != nil {
			logger.Warn("Failed to archive webhook body", zap.Error(err))
			return
		}
		logger.Debug("Archived webhook body", zap.String("key", key))
	}()
}

func (s *Service) finish(result PushResult, outcome string) PushResult {
	webhookRequestsTotal.WithLabelValues(outcome).Inc()
	return result
}

func (s *Service) fail(err error, outcome string) (PushResult, error) {
	webhookRequestsTotal.WithLabelValues(outcome).Inc()
	return PushResult{}, err
}

// SearchCommits resolves an optional repository name and runs the query
// against the search backend.
func (s *Service) SearchCommits(ctx context.Context, text, repoFullName string, limit int) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, errSearchDisabled
	}
	query := search.Query{Text: text, Limit: limit}
	if repoFullName != "" {
		project, err := s.store.GetProjectByRepo(ctx, repoFullName)
		if errors.Is(err, store.ErrNotFound) {
			return search.Response{}, errProjectNotFound
		}
		if err != nil {
			return search.Response{}, fmt.Errorf("lookup project: %w", err)
		}
		query.ProjectID = project.ID
	}
	return s.search.Search(ctx, query), nil
}

// Ready pings the database and every optional dependency.
func (s *Service) Ready(ctx context.Context) map[string]error {
	results := map[string]error{"database": s.store.Ping(ctx)}
	for name, check := range s.checks {
		results[name] = check.Ping(ctx)
	}
	return results
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
