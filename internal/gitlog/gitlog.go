// Package gitlog reads commit history from a local repository so operators
// can replay real commits against the webhook.
package gitlog

import (
	"errors"
	"fmt"
	"io"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

type Commit struct {
	Hash        string
	Message     string
	AuthorName  string
	AuthorEmail string
	When        time.Time
}

type History struct {
	Branch  string
	Commits []Commit
}

// Recent returns up to n commits reachable from HEAD, oldest first, the order
// GitHub uses for the commits of a push. path may point anywhere inside the
// working tree.
func Recent(path string, n int) (History, error) {
	if n <= 0 {
		return History{}, fmt.Errorf("commit count must be positive, got %d", n)
	}

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return History{}, fmt.Errorf("open repo %s: %w", path, err)
	}

	head, err := repo.Head()
	if err != nil {
		return History{}, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return History{}, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	commits := make([]Commit, 0, n)
	err = iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, Commit{
			Hash:        c.Hash.String(),
			Message:     c.Message,
			AuthorName:  c.Author.Name,
			AuthorEmail: c.Author.Email,
			When:        c.Author.When,
		})
		if len(commits) >= n {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return History{}, fmt.Errorf("iterate log: %w", err)
	}

	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}

	branch := "main"
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return History{Branch: branch, Commits: commits}, nil
}
