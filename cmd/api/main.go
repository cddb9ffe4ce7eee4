package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/auth"
	"github.com/rasyiqi-code/breaktool-sub003/internal/config"
	"github.com/rasyiqi-code/breaktool-sub003/internal/engine"
	"github.com/rasyiqi-code/breaktool-sub003/internal/httpapi"
	"github.com/rasyiqi-code/breaktool-sub003/internal/obs"
	"github.com/rasyiqi-code/breaktool-sub003/internal/store/memory"
	"github.com/rasyiqi-code/breaktool-sub003/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Error("load config", "error", err.Error())
		os.Exit(1)
	}
	logger := obs.NewJSONLogger(os.Stdout, obs.ParseLevel(cfg.LogLevel))
	obs.SetLogger(logger)

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store engine.Store
		ready httpapi.ReadyProbe
	)
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			logger.Error("open db", "error", err.Error())
			os.Exit(1)
		}
		defer pgStore.Close()
		store = pgStore
		ready = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		logger.Warn("BREAKTOOL_PG_DSN not set, using in-memory store")
		store = memory.New()
	}

	eng, err := engine.New(store,
		engine.WithNewMemberWindow(cfg.Engine.NewMemberWindow),
		engine.WithEvidenceK(cfg.Engine.VerdictEvidenceK),
		engine.WithLogger(logger),
	)
	if err != nil {
		logger.Error("init engine", "error", err.Error())
		os.Exit(1)
	}

	opts := httpapi.Options{
		Engine:     eng,
		Ready:      ready,
		Version:    version,
		RateBurst:  cfg.RateLimitBurst,
		RatePerSec: cfg.RateLimitRPS,
	}
	if cfg.AuthSecret != "" {
		issuer, err := auth.NewIssuer(cfg.AuthSecret)
		if err != nil {
			logger.Error("init auth", "error", err.Error())
			os.Exit(1)
		}
		opts.Verifier = issuer
	} else {
		logger.Warn("BREAKTOOL_AUTH_SECRET not set, callers are identified by the X-User-ID header")
	}

	api, err := httpapi.New(opts)
	if err != nil {
		logger.Error("init http api", "error", err.Error())
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting breaktool reputation api", "version", version, "addr", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "error", err.Error())
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	logger.Info("stopped")
}
