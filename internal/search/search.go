package search

import "context"

// Result is a single commit hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	CommitHash string `json:"commitHash"`
	Author     string `json:"author"`
	Branch     string `json:"branch"`
	Message    string `json:"message"`
	Snippet    string `json:"snippet"`
	PushedAt   int64  `json:"pushedAt"`
}

// Query describes a commit search.
type Query struct {
	Text      string
	ProjectID string // empty = every project
	Limit     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a commit search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// CommitRecord is the data indexed for one commit event.
type CommitRecord struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	CommitHash string `json:"commitHash"`
	Author     string `json:"author"`
	Branch     string `json:"branch"`
	Message    string `json:"message"`
	PushedAt   int64  `json:"pushedAt"`
}
