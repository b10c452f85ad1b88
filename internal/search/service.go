package search

import (
	"context"

	"go.uber.org/zap"

	"devblog/api/internal/store"
)

// CommitIndex receives commits for indexing.
type CommitIndex interface {
	Healthy() bool
	IndexCommits(commits []CommitRecord) error
}

// Index is a Searcher that can also be written to, such as *Meili.
type Index interface {
	Searcher
	CommitIndex
}

// Service tries the index first and falls back to the database.
type Service struct {
	index    Index
	fallback Searcher
	logger   *zap.Logger
}

// NewService creates a search service. index may be nil when no search
// server is configured.
func NewService(index Index, fallback Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, fallback: fallback, logger: logger.Named("search")}
}

// Search never fails: backend errors are logged and yield an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.index != nil && s.index.Healthy() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.logger.Warn("Index search failed, falling back to database", zap.Error(err))
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("Database search failed", zap.Error(err))
		return Response{Results: []Result{}, Query: q.Text, Backend: "database"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "database"}
}

// IndexCommits pushes persisted commit events to the index without blocking
// the caller.
func (s *Service) IndexCommits(events []store.CommitEvent) {
	if s.index == nil || !s.index.Healthy() || len(events) == 0 {
		return
	}
	records := make([]CommitRecord, len(events))
	for i, event := range events {
		records[i] = RecordFromEvent(event)
	}
	go func() {
		if err := s.index.IndexCommits(records); err != nil {
			s.logger.Warn("Index commits failed", zap.Int("count", len(records)), zap.Error(err))
		}
	}()
}

func RecordFromEvent(event store.CommitEvent) CommitRecord {
	return CommitRecord{
		ID:         event.ID,
		ProjectID:  event.ProjectID,
		CommitHash: event.CommitHash,
		Author:     event.Author,
		Branch:     event.Branch,
		Message:    event.Message,
		PushedAt:   event.PushedAt.Unix(),
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

type commitSearchStore interface {
	SearchCommits(ctx context.Context, projectID, text string, limit int) ([]store.CommitEvent, error)
}

// DatabaseSearcher adapts the store's LIKE search to Searcher.
type DatabaseSearcher struct {
	store commitSearchStore
}

func NewDatabaseSearcher(s commitSearchStore) *DatabaseSearcher {
	return &DatabaseSearcher{store: s}
}

// Healthy always returns true; without the database nothing else works either.
func (d *DatabaseSearcher) Healthy() bool { return true }

func (d *DatabaseSearcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	events, err := d.store.SearchCommits(ctx, q.ProjectID, q.Text, limit)
	if err != nil {
		return nil, 0, err
	}
	results := make([]Result, len(events))
	for i, event := range events {
		results[i] = Result{
			ID:         event.ID,
			ProjectID:  event.ProjectID,
			CommitHash: event.CommitHash,
			Author:     event.Author,
			Branch:     event.Branch,
			Message:    event.Message,
			Snippet:    firstLine(event.Message),
			PushedAt:   event.PushedAt.Unix(),
		}
	}
	return results, len(results), nil
}
