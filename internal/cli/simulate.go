package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"devblog/api/internal/auth"
	"devblog/api/internal/gitlog"
)

type simulateOptions struct {
	URL     string
	Repo    string
	Secret  string
	Event   string
	Ref     string
	GitDir  string
	Count   int
	Timeout time.Duration
}

// NewSimulateCommand posts a signed push payload to a running server, built
// from local git history or from a fixed sample.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Send a signed GitHub push webhook to a devblog server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Secret == "" {
				if cfg, _, err := loadConfig(rootOpts); err == nil {
					opts.Secret = cfg.DefaultWebhookSecret
				}
			}
			if opts.Secret == "" {
				return fmt.Errorf("--secret is required when GITHUB_WEBHOOK_SECRET_DEFAULT is unset")
			}
			return runSimulate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "http://localhost:8000/webhook/github", "webhook endpoint")
	cmd.Flags().StringVar(&opts.Repo, "repo", "", "repository full name, e.g. owner/repo")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "webhook secret (default GITHUB_WEBHOOK_SECRET_DEFAULT)")
	cmd.Flags().StringVar(&opts.Event, "event", "push", "X-GitHub-Event value")
	cmd.Flags().StringVar(&opts.Ref, "ref", "", "git ref (default the branch of --git-dir, else refs/heads/main)")
	cmd.Flags().StringVar(&opts.GitDir, "git-dir", "", "read commits from this repository instead of the sample")
	cmd.Flags().IntVar(&opts.Count, "count", 3, "commits to read from --git-dir")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func runSimulate(cmd *cobra.Command, opts *simulateOptions) error {
	var history *gitlog.History
	if opts.GitDir != "" {
		h, err := gitlog.Recent(opts.GitDir, opts.Count)
		if err != nil {
			return err
		}
		history = &h
	}

	body, err := json.Marshal(simulatedPush(opts.Repo, opts.Ref, history))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, opts.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", opts.Event)
	req.Header.Set("X-GitHub-Delivery", uuid.NewString())
	req.Header.Set("X-Hub-Signature-256", auth.Sign(body, opts.Secret))

	client := &http.Client{Timeout: opts.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "POST %s repo=%s commits=%d\n", opts.URL, opts.Repo, commitCount(history))
	fmt.Fprintf(out, "Status: %d\n", resp.StatusCode)
	fmt.Fprintf(out, "Response: %s\n", strings.TrimSpace(string(respBody)))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

type simulatedAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type simulatedCommit struct {
	ID        string          `json:"id"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	URL       string          `json:"url"`
	Author    simulatedAuthor `json:"author"`
}

type simulatedRepository struct {
	FullName string `json:"full_name"`
}

type simulatedPayload struct {
	Ref        string              `json:"ref"`
	Repository simulatedRepository `json:"repository"`
	Commits    []simulatedCommit   `json:"commits"`
	Pusher     simulatedAuthor     `json:"pusher"`
}

var sampleCommits = []gitlog.Commit{
	{Hash: "abc123def456", Message: "feat: Add simulated webhook test", AuthorName: "Tester", When: time.Date(2025, 12, 9, 10, 0, 0, 0, time.UTC)},
	{Hash: "def789ghi012", Message: "fix: Correct minor bug", AuthorName: "Tester", When: time.Date(2025, 12, 9, 10, 5, 0, 0, time.UTC)},
}

func simulatedPush(repo, ref string, history *gitlog.History) simulatedPayload {
	commits := sampleCommits
	branch := "main"
	if history != nil {
		commits = history.Commits
		branch = history.Branch
	}
	if ref == "" {
		ref = "refs/heads/" + branch
	}

	payload := simulatedPayload{
		Ref:        ref,
		Repository: simulatedRepository{FullName: repo},
		Commits:    make([]simulatedCommit, len(commits)),
		Pusher:     simulatedAuthor{Name: "devblog-simulate"},
	}
	for i, c := range commits {
		payload.Commits[i] = simulatedCommit{
			ID:        c.Hash,
			Message:   strings.TrimRight(c.Message, "\n"),
			Timestamp: c.When.Format(time.RFC3339),
			URL:       fmt.Sprintf("https://github.com/%s/commit/%s", repo, c.Hash),
			Author:    simulatedAuthor{Name: c.AuthorName, Email: c.AuthorEmail},
		}
	}
	return payload
}

func commitCount(history *gitlog.History) int {
	if history == nil {
		return len(sampleCommits)
	}
	return len(history.Commits)
}
