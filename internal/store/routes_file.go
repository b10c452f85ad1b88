package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type routesFile struct {
	Projects []Project `yaml:"projects"`
}

// LoadRoutesFile reads project routes from a YAML document of the form
//
//	projects:
//	  - repo_full_name: acme/widgets
//	    name: Widgets
//	    telegram_chat_id: "-100123"
func LoadRoutesFile(path string) ([]Project, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	var doc routesFile
	if err := yaml.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("parse routes file %s: %w", path, err)
	}
	seen := make(map[string]bool, len(doc.Projects))
	for i, project := range doc.Projects {
		if project.RepoFullName == "" {
			return nil, fmt.Errorf("routes file %s: entry %d has no repo_full_name", path, i)
		}
		if seen[project.RepoFullName] {
			return nil, fmt.Errorf("routes file %s: duplicate route for %s", path, project.RepoFullName)
		}
		seen[project.RepoFullName] = true
	}
	return doc.Projects, nil
}

// ImportRoutes upserts every project and returns how many were written.
func ImportRoutes(ctx context.Context, s *SQLStore, projects []Project) (int, error) {
	for i, project := range projects {
		if _, err := s.UpsertProject(ctx, project); err != nil {
			return i, err
		}
	}
	return len(projects), nil
}
