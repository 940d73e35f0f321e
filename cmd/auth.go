package cmd

import (
	"fmt"
	"strings"
	"time"

	"farmfield/internal/auth"
	"farmfield/pkg/oauth"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newAuthCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider authentication",
		Long: `Manage the OAuth tokens farmfield uses to talk to the field provider.

Tokens are cached per kind (user and client_credentials) in the token
directory and reused until they are about to expire.

Examples:
  farmfield auth status                        # Show cached tokens
  farmfield auth login                         # Authorize in the browser
  farmfield auth login --kind client_credentials
  farmfield auth clear                         # Remove every cached token`,
	}

	cmd.AddCommand(newAuthStatusCmd(opts))
	cmd.AddCommand(newAuthLoginCmd(opts))
	cmd.AddCommand(newAuthClearCmd(opts))
	return cmd
}

func newAuthStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached tokens",
		Long: `Show the cached token of every kind without contacting the provider.
Token values are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadServices(cmd, opts)
			if err != nil {
				return err
			}

			statuses := make([]auth.TokenStatus, 0, len(oauth.Kinds()))
			for _, kind := range oauth.Kinds() {
				statuses = append(statuses, svc.auth.Status(kind))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTokenStatuses(statuses, time.Now()))
			return nil
		},
	}
}

func newAuthLoginCmd(opts *options) *cobra.Command {
	var (
		kindName string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a token",
		Long: `Obtain a token of the given kind, reusing the cached one while it is valid.

A user token is renewed with its refresh token when possible. Without one,
the browser is opened for the provider's authorization page and farmfield
waits for the redirect on the configured loopback port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := oauth.ParseKind(kindName)
			if err != nil {
				return err
			}
			svc, err := loadServices(cmd, opts)
			if err != nil {
				return err
			}

			acquire := svc.auth.Acquire
			if force {
				acquire = svc.auth.ForceRefresh
			}
			tok, err := acquire(cmd.Context(), kind)
			if err != nil {
				return err
			}

			if !opts.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Authenticated (%s), token valid until %s\n",
					text.FgGreen.Sprint("✓"), kind, tok.ExpiresAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kindName, "kind", string(oauth.KindUser), "Token kind (user, client_credentials)")
	cmd.Flags().BoolVar(&force, "force", false, "Exchange a new token even if the cached one is valid")
	return cmd
}

func newAuthClearCmd(opts *options) *cobra.Command {
	var kindName string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached tokens",
		Long: `Remove cached tokens so the next login starts from scratch.
All kinds are removed unless --kind is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadServices(cmd, opts)
			if err != nil {
				return err
			}

			if kindName == "" {
				if err := svc.auth.ClearAll(); err != nil {
					return err
				}
				if !opts.quiet {
					fmt.Fprintln(cmd.OutOrStdout(), "Cleared all cached tokens.")
				}
				return nil
			}

			kind, err := oauth.ParseKind(kindName)
			if err != nil {
				return err
			}
			if err := svc.auth.Clear(kind); err != nil {
				return err
			}
			if !opts.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared cached %s token.\n", kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kindName, "kind", "", "Token kind to clear (default all)")
	return cmd
}

func renderTokenStatuses(statuses []auth.TokenStatus, now time.Time) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"KIND", "STATE", "EXPIRES", "SCOPES", "REFRESH TOKEN"})

	for _, s := range statuses {
		if !s.Present {
			t.AppendRow(table.Row{s.Kind, text.FgHiBlack.Sprint("none"), "-", "-", "-"})
			continue
		}

		state := text.FgGreen.Sprint("valid")
		if !s.Valid {
			state = text.FgYellow.Sprint("expired")
		}
		t.AppendRow(table.Row{
			s.Kind,
			state,
			formatExpiry(s.ExpiresAt, now),
			strings.Join(s.Scope, " "),
			yesNo(s.HasRefreshToken),
		})
	}
	return t.Render()
}

func formatExpiry(expiresAt, now time.Time) string {
	remaining := expiresAt.Sub(now).Round(time.Second)
	if remaining <= 0 {
		return fmt.Sprintf("%s (%s ago)", expiresAt.Local().Format(time.RFC3339), -remaining)
	}
	return fmt.Sprintf("%s (in %s)", expiresAt.Local().Format(time.RFC3339), remaining)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
