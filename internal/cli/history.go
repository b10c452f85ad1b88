package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"devblog/api/internal/store"
)

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <owner/repo>",
		Short: "Show recent commits and posts recorded for a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			s, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			project, err := s.GetProjectByRepo(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no route for %s", args[0])
			}
			if err != nil {
				return err
			}

			commits, err := s.ListCommitEvents(cmd.Context(), project.ID, limit)
			if err != nil {
				return err
			}
			posts, err := s.ListPosts(cmd.Context(), project.ID, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Commits (%d)\n", len(commits))
			for _, c := range commits {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					shortHash(c.CommitHash), c.PushedAt.UTC().Format(time.RFC3339), c.Branch, c.Author, firstLine(c.Message))
			}
			fmt.Fprintf(w, "\nPosts (%d)\n", len(posts))
			for _, p := range posts {
				detail := deref(p.TelegramMessageID)
				if p.Status == store.PostStatusError {
					detail = deref(p.ErrorMessage)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.CreatedAt.UTC().Format(time.RFC3339), p.Status, detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "entries of each kind to show")
	return cmd
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return line
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
