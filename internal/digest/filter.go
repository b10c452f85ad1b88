package digest

import (
	"strings"
	"unicode/utf8"

	"devblog/api/internal/store"
)

var conventionalPrefixes = []string{
	"feat:", "feature:",
	"fix:", "bugfix:",
	"perf:", "performance:",
	"docs:", "doc:",
	"style:",
	"refactor:",
	"test:",
	"chore:",
}

// minDescriptiveLength is the trimmed rune count a message must exceed to
// pass without a conventional prefix.
const minDescriptiveLength = 10

// Filter returns the digest-worthy commits of a batch in their original order.
func Filter(commits []store.CommitEvent) []store.CommitEvent {
	kept := make([]store.CommitEvent, 0, len(commits))
	for _, commit := range commits {
		if Worthy(commit.Message) {
			kept = append(kept, commit)
		}
	}
	return kept
}

// Worthy reports whether a commit message starts with a conventional prefix
// or is long enough to describe a change on its own.
func Worthy(message string) bool {
	message = strings.TrimSpace(message)
	lower := strings.ToLower(message)
	for _, prefix := range conventionalPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return utf8.RuneCountInString(message) > minDescriptiveLength
}
