package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"imagetolink/internal/auth"
	"imagetolink/internal/placeholder"
)

func newTokenCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens accepted by the image host",
	}

	var (
		label string
		ttl   time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new upload token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			tok, err := svc.IssueToken(cmd.Context(), label, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			if tok.ExpiresAt != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), gray("expires "+tok.ExpiresAt.Format(time.RFC3339)))
			}
			return nil
		},
	}
	issue.Flags().StringVar(&label, "label", "cli", "label logged with uploads made with the token")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "lifetime, 0 never expires")

	revoke := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke an issued token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			return svc.RevokeToken(cmd.Context(), args[0])
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List issued tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			tokens, err := svc.ListTokens(cmd.Context())
			if err != nil {
				return err
			}
			for _, tok := range tokens {
				expires := "never"
				if tok.ExpiresAt != nil {
					expires = tok.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s %s  expires %s\n",
					tok.Token, bold(tok.Label), tok.CreatedAt.Format(time.RFC3339), expires)
			}
			return nil
		},
	}

	cmd.AddCommand(issue, revoke, list)
	return cmd
}

func (a *app) authService() (*auth.Service, error) {
	db, err := a.database()
	if err != nil {
		return nil, err
	}
	rdb, err := a.redisClient()
	if err != nil {
		return nil, err
	}
	return auth.NewService(db, rdb, a.cfg.Server.StaticTokens), nil
}

func newOrphansCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans <document>...",
		Short: "List image placeholders whose upload never settled",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			total := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				for _, dest := range placeholder.Orphans(data) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, dest)
					total++
				}
			}
			if total > 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), red(fmt.Sprintf("%d pending placeholder(s)", total)))
			}
			return nil
		},
	}
}
