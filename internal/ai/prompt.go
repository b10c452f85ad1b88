package ai

import (
	"fmt"
	"strings"
	"time"

	"devblog/api/internal/store"
)

// BuildPrompt describes the batch to the model, one line per commit.
func BuildPrompt(project store.Project, commits []store.CommitEvent) string {
	name := project.Name
	if name == "" {
		name = project.RepoFullName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a short Telegram post (max 250 tokens) in %s for the project '%s'.\n", project.Language, name)
	b.WriteString("Output should be a single message suitable for Telegram, include a short title, 2-6 bullet points summarizing commits, appropriate emoji, and 2-4 hashtags. Use HTML formatting for bold and italics where helpful.\n")
	b.WriteString("Tone: concise, friendly, developer-focused. If commit messages are trivial, summarize them. Do not invent features.\n")
	b.WriteString("---")
	for _, commit := range commits {
		hash := commit.CommitHash
		if len(hash) > 7 {
			hash = hash[:7]
		}
		when := ""
		if !commit.PushedAt.IsZero() {
			when = commit.PushedAt.Format(time.RFC3339)
		}
		line, _, _ := strings.Cut(commit.Message, "\n")
		fmt.Fprintf(&b, "\n- %s | %s | %s | %s", hash, commit.Author, when, strings.TrimRight(line, "\r"))
	}
	return b.String()
}
