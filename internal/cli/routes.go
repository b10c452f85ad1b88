package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"devblog/api/internal/store"
)

func NewRoutesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Manage repository to chat routes",
	}
	cmd.AddCommand(newRoutesImportCommand(rootOpts))
	cmd.AddCommand(newRoutesListCommand(rootOpts))
	cmd.AddCommand(newRoutesDeleteCommand(rootOpts))
	return cmd
}

func newRoutesImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <routes.yaml>",
		Short: "Create or update routes from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			routes, err := store.LoadRoutesFile(args[0])
			if err != nil {
				return err
			}

			s, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := store.ImportRoutes(cmd.Context(), s, routes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d routes\n", n)
			return nil
		},
	}
}

func newRoutesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured routes",
		Args:  cobra.NoArgs,
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

			projects, err := s.ListProjects(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REPOSITORY\tCHAT\tLANGUAGE\tAI\tMODE\tSECRET")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
					p.RepoFullName, p.TelegramChatID, p.Language, p.AIEnabled, p.PostMode, secretState(p.WebhookSecret, cfg.DefaultWebhookSecret))
			}
			return w.Flush()
		},
	}
}

func newRoutesDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <owner/repo>",
		Short: "Delete a route with its commits and posts",
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

			if err := s.DeleteProject(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no route for %s", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func secretState(routeSecret, defaultSecret string) string {
	switch {
	case routeSecret != "":
		return "route"
	case defaultSecret != "":
		return "default"
	default:
		return "none"
	}
}
