package digest

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"devblog/api/internal/store"
)

const (
	SourceTemplate = "template"
	SourceAI       = "ai"

	tags = "#devblog #changelog"
)

// Digest is the outbound message for one batch. Markdown is empty when the
// text came from the AI composer.
type Digest struct {
	Text     string
	Markdown string
	Source   string
}

var commitTypes = map[string]bool{
	"feat": true, "fix": true, "docs": true, "style": true,
	"refactor": true, "perf": true, "test": true, "chore": true,
}

// Markers are checked in order; the first rule with a matching substring wins.
var markerRules = []struct {
	marker   string
	keywords []string
}{
	{"✨", []string{"feat", "feature", "add"}},
	{"🐛", []string{"fix", "bug"}},
	{"📚", []string{"docs", "documentation"}},
	{"⚡", []string{"perf", "performance", "optimize"}},
	{"♻️", []string{"refactor"}},
	{"🧪", []string{"test"}},
	{"🔧", []string{"chore", "update"}},
}

const defaultMarker = "📝"

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

type locale struct {
	noun       func(n int) string
	timeLayout string
}

var (
	russian = locale{
		noun: func(n int) string {
			switch {
			case n == 1:
				return "коммит"
			case n < 5:
				return "коммита"
			default:
				return "коммитов"
			}
		},
		timeLayout: "02.01.2006 в 15:04",
	}
	english = locale{
		noun: func(n int) string {
			if n == 1 {
				return "commit"
			}
			return "commits"
		},
		timeLayout: "2006-01-02 at 15:04",
	}
	russianBase, _ = language.Russian.Base()
)

func localeFor(code string) locale {
	base, _ := language.Make(strings.TrimSpace(code)).Base()
	if base == russianBase {
		return russian
	}
	return english
}

// RenderTemplate builds the deterministic digest for commits. It returns an
// empty Digest for an empty batch.
func RenderTemplate(project store.Project, commits []store.CommitEvent, now time.Time) Digest {
	if len(commits) == 0 {
		return Digest{}
	}

	loc := localeFor(project.Language)
	name := project.Name
	if name == "" {
		name = project.RepoFullName
	}

	htmlLines := make([]string, 0, len(commits))
	mdLines := make([]string, 0, len(commits))
	for _, commit := range commits {
		marker, commitType, line := describe(commit.Message)
		htmlLines = append(htmlLines, strings.TrimRight(marker+" "+commitType+htmlEscaper.Replace(line), " "))
		mdLines = append(mdLines, strings.TrimRight(marker+" "+commitType+line, " "))
	}

	count := fmt.Sprintf("%d %s", len(commits), loc.noun(len(commits)))
	stamp := now.UTC().Format(loc.timeLayout)

	text := fmt.Sprintf("🚀 <b>%s</b> — %s\n\n%s\n\n<i>%s</i>\n\n%s",
		htmlEscaper.Replace(name), count, strings.Join(htmlLines, "\n"), stamp, tags)
	markdown := fmt.Sprintf("🚀 **%s** — %s\n\n%s\n\n_%s_\n\n%s",
		name, count, strings.Join(mdLines, "\n"), stamp, tags)

	return Digest{Text: text, Markdown: markdown, Source: SourceTemplate}
}

// describe splits a commit message into its marker, an optional "[TYPE] "
// label, and the first line with the type prefix removed.
func describe(message string) (marker, commitType, line string) {
	line = strings.TrimSpace(firstLine(message))
	if head, rest, ok := strings.Cut(line, ":"); ok {
		prefix := strings.ToLower(strings.TrimSpace(head))
		if commitTypes[prefix] {
			commitType = "[" + strings.ToUpper(prefix) + "] "
			line = strings.TrimSpace(rest)
		}
	}
	return markerFor(message), commitType, line
}

func markerFor(message string) string {
	lower := strings.ToLower(message)
	for _, rule := range markerRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.marker
			}
		}
	}
	return defaultMarker
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return strings.TrimSuffix(line, "\r")
}
