package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rasyiqi-code/breaktool-sub003/internal/config"
	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
	"github.com/rasyiqi-code/breaktool-sub003/internal/engine"
	"github.com/rasyiqi-code/breaktool-sub003/internal/obs"
	"github.com/rasyiqi-code/breaktool-sub003/internal/store/pg"
)

// backend is a store the CLI can also provision users in.
type backend interface {
	engine.Store
	EnsureUser(ctx context.Context, userID string, createdAt time.Time) (domain.User, error)
}

type opener func(cfg config.Config) (backend, func() error, error)

func openBackend(cfg config.Config) (backend, func() error, error) {
	if cfg.PGDSN == "" {
		return nil, nil, errors.New("BREAKTOOL_PG_DSN is required")
	}
	s, err := pg.Open(cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

type cli struct {
	open    opener
	cfgFile string
	timeout time.Duration
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}
	root := &cobra.Command{
		Use:          "reputationctl",
		Short:        "Maintain trust scores, badges and tool verdicts",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "YAML config file (overrides BREAKTOOL_CONFIG)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 2*time.Minute, "Overall timeout")

	root.AddCommand(c.recalcCmd(), c.usersCmd(), c.tokenCmd(), c.badgesCmd())
	return root
}

func (c *cli) config() (config.Config, error) {
	getenv := os.Getenv
	if c.cfgFile != "" {
		getenv = func(key string) string {
			if key == "BREAKTOOL_CONFIG" {
				return c.cfgFile
			}
			return os.Getenv(key)
		}
	}
	cfg, err := config.LoadFrom(getenv)
	if err != nil {
		return config.Config{}, err
	}
	obs.SetLogger(obs.NewJSONLogger(os.Stderr, obs.ParseLevel(cfg.LogLevel)))
	return cfg, nil
}

// withEngine opens the backend, builds an engine and runs fn under the timeout.
func (c *cli) withEngine(cmd *cobra.Command, fn func(ctx context.Context, b backend, e *engine.Engine) error) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	b, closeFn, err := c.open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if closeFn != nil {
		defer closeFn()
	}
	e, err := engine.New(b,
		engine.WithNewMemberWindow(cfg.Engine.NewMemberWindow),
		engine.WithEvidenceK(cfg.Engine.VerdictEvidenceK),
	)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()
	return fn(ctx, b, e)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
