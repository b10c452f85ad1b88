package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"devblog/api/internal/store"
)

const maxCommitHashLength = 40

// pushPayload holds the parts of a GitHub push body the pipeline reads.
// Commits stay loosely typed so one malformed entry cannot reject the batch.
type pushPayload struct {
	RepoFullName string
	Ref          string
	Commits      []any
}

func decodePushPayload(body []byte) (pushPayload, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil || raw == nil {
		return pushPayload{}, errInvalidJSON
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return pushPayload{}, errInvalidJSON
	}

	repository, _ := raw["repository"].(map[string]any)
	payload := pushPayload{
		RepoFullName: strings.TrimSpace(stringField(repository, "full_name")),
		Ref:          stringField(raw, "ref"),
	}
	payload.Commits, _ = raw["commits"].([]any)
	return payload, nil
}

// branchFromRef returns the last path segment: refs/heads/main -> main.
func branchFromRef(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// buildCommitEvent never fails: missing or malformed fields get best-effort
// values so every entry of a push yields exactly one record.
func buildCommitEvent(projectID, branch string, entry any, now time.Time) store.CommitEvent {
	fields, _ := entry.(map[string]any)
	author, _ := fields["author"].(map[string]any)

	name := strings.TrimSpace(stringField(author, "name"))
	if name == "" {
		name = "Unknown"
	}

	var dataRaw string
	if encoded, err := json.Marshal(entry); err == nil {
		dataRaw = string(encoded)
	}

	return store.CommitEvent{
		ProjectID:  projectID,
		CommitHash: truncateRunes(stringField(fields, "id"), maxCommitHashLength),
		Author:     name,
		Message:    stringField(fields, "message"),
		PushedAt:   parseCommitTimestamp(stringField(fields, "timestamp"), now),
		Branch:     branch,
		DataRaw:    dataRaw,
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseCommitTimestamp accepts RFC 3339 and zone-less ISO 8601 (read as UTC).
func parseCommitTimestamp(value string, fallback time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return fallback
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
