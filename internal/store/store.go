package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"devblog/api/internal/util"
)

var ErrNotFound = errors.New("not found")

const (
	projectColumns = `id, name, repo_type, repo_full_name, github_webhook_secret, language,
		ai_enabled, post_mode, telegram_chat_id, telegram_bot_token, created_at, updated_at`
	commitColumns = `id, project_id, commit_hash, author, message, pushed_at, branch,
		COALESCE(CAST(data_raw AS TEXT), '') AS data_raw, created_at`
	postColumns = `id, project_id, source, content, content_md, status, error_message,
		telegram_message_id, created_at`
)

// SQLStore persists projects, commit events and posts. Queries are written
// with ? placeholders and rebound for the connected driver.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) GetProjectByRepo(ctx context.Context, repoFullName string) (Project, error) {
	var project Project
	query := s.db.Rebind(`SELECT ` + projectColumns + ` FROM projects WHERE repo_full_name = ?`)
	err := s.db.GetContext(ctx, &project, query, repoFullName)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project %s: %w", repoFullName, err)
	}
	return project, nil
}

func (s *SQLStore) ListProjects(ctx context.Context) ([]Project, error) {
	projects := make([]Project, 0)
	err := s.db.SelectContext(ctx, &projects, `SELECT `+projectColumns+` FROM projects ORDER BY repo_full_name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// UpsertProject creates the route for project.RepoFullName or replaces its
// settings. The stored id of an existing route is kept.
func (s *SQLStore) UpsertProject(ctx context.Context, project Project) (Project, error) {
	project.RepoFullName = strings.TrimSpace(project.RepoFullName)
	if project.RepoFullName == "" {
		return Project{}, errors.New("upsert project: repo_full_name is required")
	}
	if strings.TrimSpace(project.TelegramChatID) == "" {
		return Project{}, fmt.Errorf("upsert project %s: telegram_chat_id is required", project.RepoFullName)
	}
	if project.ID == "" {
		project.ID = util.NewID("prj")
	}
	if project.Name == "" {
		project.Name = project.RepoFullName
	}
	if project.RepoType == "" {
		project.RepoType = "github"
	}
	if project.Language == "" {
		project.Language = "ru"
	}
	if project.PostMode == "" {
		project.PostMode = PostModePerPush
	}
	if project.PostMode != PostModePerPush && project.PostMode != PostModeDailyDigest {
		return Project{}, fmt.Errorf("upsert project %s: unknown post_mode %q", project.RepoFullName, project.PostMode)
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO projects (id, name, repo_type, repo_full_name, github_webhook_secret, language,
			ai_enabled, post_mode, telegram_chat_id, telegram_bot_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repo_full_name) DO UPDATE SET
			name = excluded.name,
			repo_type = excluded.repo_type,
			github_webhook_secret = excluded.github_webhook_secret,
			language = excluded.language,
			ai_enabled = excluded.ai_enabled,
			post_mode = excluded.post_mode,
			telegram_chat_id = excluded.telegram_chat_id,
			telegram_bot_token = excluded.telegram_bot_token,
			updated_at = excluded.updated_at
	`), project.ID, project.Name, project.RepoType, project.RepoFullName, project.WebhookSecret, project.Language,
		project.AIEnabled, project.PostMode, project.TelegramChatID, project.TelegramBotToken, now, now)
	if err != nil {
		return Project{}, fmt.Errorf("upsert project %s: %w", project.RepoFullName, err)
	}
	return s.GetProjectByRepo(ctx, project.RepoFullName)
}

func (s *SQLStore) DeleteProject(ctx context.Context, repoFullName string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM projects WHERE repo_full_name = ?`), repoFullName)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", repoFullName, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertCommitEvents stores every event in one transaction: either all rows
// of a push are written or none are.
func (s *SQLStore) InsertCommitEvents(ctx context.Context, events []CommitEvent) ([]CommitEvent, error) {
	if len(events) == 0 {
		return events, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commit events tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO commit_events (id, project_id, commit_hash, author, message, pushed_at, branch, data_raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return nil, fmt.Errorf("prepare commit event insert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	stored := make([]CommitEvent, len(events))
	for i, event := range events {
		if event.ID == "" {
			event.ID = util.NewID("cev")
		}
		event.PushedAt = event.PushedAt.UTC()
		event.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, event.ID, event.ProjectID, event.CommitHash, event.Author, event.Message,
			event.PushedAt, event.Branch, nullableString(event.DataRaw), event.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert commit event %s: %w", event.CommitHash, err)
		}
		stored[i] = event
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit commit events: %w", err)
	}
	return stored, nil
}

func (s *SQLStore) ListCommitEvents(ctx context.Context, projectID string, limit int) ([]CommitEvent, error) {
	events := make([]CommitEvent, 0)
	query := s.db.Rebind(`SELECT ` + commitColumns + ` FROM commit_events WHERE project_id = ? ORDER BY created_at DESC, pushed_at DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &events, query, projectID, normalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("list commit events: %w", err)
	}
	return events, nil
}

// SearchCommits is a case-insensitive substring match over commit messages.
// An empty projectID searches every project.
func (s *SQLStore) SearchCommits(ctx context.Context, projectID, text string, limit int) ([]CommitEvent, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(text))) + "%"
	query := `SELECT ` + commitColumns + ` FROM commit_events WHERE LOWER(message) LIKE ? ESCAPE '\'`
	args := []any{pattern}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY pushed_at DESC LIMIT ?`
	args = append(args, normalizeLimit(limit))

	events := make([]CommitEvent, 0)
	if err := s.db.SelectContext(ctx, &events, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("search commit events: %w", err)
	}
	return events, nil
}

func (s *SQLStore) InsertPost(ctx context.Context, post Post) (Post, error) {
	if post.ID == "" {
		post.ID = util.NewID("pst")
	}
	if post.Source == "" {
		post.Source = "github"
	}
	if post.Status != PostStatusSuccess && post.Status != PostStatusError {
		return Post{}, fmt.Errorf("insert post: unknown status %q", post.Status)
	}
	post.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO posts (id, project_id, source, content, content_md, status, error_message, telegram_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), post.ID, post.ProjectID, post.Source, post.Content, post.ContentMD, post.Status, post.ErrorMessage,
		post.TelegramMessageID, post.CreatedAt)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

func (s *SQLStore) ListPosts(ctx context.Context, projectID string, limit int) ([]Post, error) {
	posts := make([]Post, 0)
	query := s.db.Rebind(`SELECT ` + postColumns + ` FROM posts WHERE project_id = ? ORDER BY created_at DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &posts, query, projectID, normalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
