package store

import "time"

const (
	PostModePerPush     = "per_push"
	PostModeDailyDigest = "daily_digest"

	PostStatusSuccess = "success"
	PostStatusError   = "error"
)

// Project is the per-repository route: where a repository's pushes are
// verified against and where its digests are delivered.
type Project struct {
	ID             string `db:"id" yaml:"id"`
	Name           string `db:"name" yaml:"name"`
	RepoType       string `db:"repo_type" yaml:"repo_type"`
	RepoFullName   string `db:"repo_full_name" yaml:"repo_full_name"`
	WebhookSecret  string `db:"github_webhook_secret" yaml:"webhook_secret"`
	Language       string `db:"language" yaml:"language"`
	AIEnabled      bool   `db:"ai_enabled" yaml:"ai_enabled"`
	PostMode       string `db:"post_mode" yaml:"post_mode"`
	TelegramChatID string `db:"telegram_chat_id" yaml:"telegram_chat_id"`
	// TelegramBotToken overrides the global bot token when set.
	TelegramBotToken string    `db:"telegram_bot_token" yaml:"telegram_bot_token"`
	CreatedAt        time.Time `db:"created_at" yaml:"-"`
	UpdatedAt        time.Time `db:"updated_at" yaml:"-"`
}

// CommitEvent is one commit seen in a push, stored before any filtering.
type CommitEvent struct {
	ID         string    `db:"id" json:"id"`
	ProjectID  string    `db:"project_id" json:"project_id"`
	CommitHash string    `db:"commit_hash" json:"commit_hash"`
	Author     string    `db:"author" json:"author"`
	Message    string    `db:"message" json:"message"`
	PushedAt   time.Time `db:"pushed_at" json:"pushed_at"`
	Branch     string    `db:"branch" json:"branch"`
	DataRaw    string    `db:"data_raw" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Post is the outcome of one delivery attempt.
type Post struct {
	ID                string    `db:"id" json:"id"`
	ProjectID         string    `db:"project_id" json:"project_id"`
	Source            string    `db:"source" json:"source"`
	Content           string    `db:"content" json:"content"`
	ContentMD         *string   `db:"content_md" json:"content_md,omitempty"`
	Status            string    `db:"status" json:"status"`
	ErrorMessage      *string   `db:"error_message" json:"error_message,omitempty"`
	TelegramMessageID *string   `db:"telegram_message_id" json:"telegram_message_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
