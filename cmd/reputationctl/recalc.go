package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rasyiqi-code/breaktool-sub003/internal/engine"
)

func (c *cli) recalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recompute derived reputation data",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "user <user-id>",
		Short: "Recompute a user's trust score and badges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, _ backend, e *engine.Engine) error {
				res, badgeIDs, err := e.RecalculateUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"user_id":     args[0],
					"trust_score": res.Score,
					"factors":     res.Factors,
					"badges":      badgeIDs,
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tool <tool-id>",
		Short: "Re-aggregate one tool verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, _ backend, e *engine.Engine) error {
				res, err := e.AggregateVerdict(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "Re-aggregate every tool verdict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, _ backend, e *engine.Engine) error {
				started := time.Now()
				n, err := e.RecalculateAllVerdicts(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d verdicts in %s\n", n, time.Since(started).Round(time.Millisecond))
				return err
			})
		},
	})
	return cmd
}

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Provision and inspect users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure <user-id>",
		Short: "Create the reputation record for a user if missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, b backend, e *engine.Engine) error {
				if _, err := b.EnsureUser(ctx, args[0], time.Now()); err != nil {
					return err
				}
				if _, err := e.ComputeBadges(ctx, args[0]); err != nil {
					return err
				}
				u, err := e.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), u)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a user's roles, trust score and badges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, _ backend, e *engine.Engine) error {
				u, err := e.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				held, err := e.AvailableRoles(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"user": u, "roles": held})
			})
		},
	})
	return cmd
}
