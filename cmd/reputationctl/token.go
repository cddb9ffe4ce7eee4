package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rasyiqi-code/breaktool-sub003/internal/auth"
	"github.com/rasyiqi-code/breaktool-sub003/internal/badges"
	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

func (c *cli) tokenCmd() *cobra.Command {
	var (
		roles      []string
		activeRole string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a signed bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return errors.New("BREAKTOOL_AUTH_SECRET is required")
			}
			for _, r := range roles {
				if _, err := domain.ParseRole(r); err != nil {
					return err
				}
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			issuer, err := auth.NewIssuer(cfg.AuthSecret)
			if err != nil {
				return err
			}
			tok, exp, err := issuer.GenerateToken(args[0], roles, activeRole, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", []string{domain.RoleUser.String()}, "Role claim, repeatable")
	cmd.Flags().StringVar(&activeRole, "active-role", "", "Active role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to token_ttl)")
	return cmd
}

func (c *cli) badgesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "badges",
		Short: "Print the badge catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), badges.Catalog())
		},
	}
}
