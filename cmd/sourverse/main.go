package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"sourverse/internal/auth"
	"sourverse/internal/backend"
	"sourverse/internal/cache"
	"sourverse/internal/cli"
	"sourverse/internal/config"
	apphttp "sourverse/internal/http"
	"sourverse/internal/ledger"
	applog "sourverse/internal/log"
	"sourverse/internal/metrics"
	"sourverse/internal/presence"
	"sourverse/internal/realtime"
	"sourverse/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
	cacheSweepEvery = 10 * time.Minute
)

func main() {
	cfg, logger := cli.Bootstrap((*config.Config).Validate)
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, session tokens will not survive a restart")
	}
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	m := metrics.New()
	l := ledger.New(res.Repository,
		ledger.WithMaxAttempts(cfg.InvestMaxRetries),
		ledger.WithLogger(logger))

	projects := services.NewProjectService(res.Repository, logger)
	accounts := services.NewAccountService(res.Repository, l, issuer, m, logger)
	var publisher services.JournalPublisher
	if res.Publisher != nil {
		publisher = res.Publisher
	}
	investments := services.NewInvestmentService(l, publisher, projects, m, logger)

	registry := presence.NewRegistry(presence.Bounds{Width: cfg.SpaceWidth, Height: cfg.SpaceHeight})
	hub := realtime.NewHub(registry,
		realtime.WithSendBuffer(cfg.PeerSendBuffer),
		realtime.WithHubLogger(logger),
		realtime.WithHubMetrics(m))

	caches := cache.NewManager(logger)
	caches.Register(projects.Cache())

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               cfg.Addr(),
		AllowedOrigins:     cfg.AllowedOrigins(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Accounts:           accounts,
		Projects:           projects,
		Investments:        investments,
		Issuer:             issuer,
		Hub:                hub,
		Metrics:            m,
		Ready:              res.Ready,
		Logger:             logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(hub.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(caches.Run(gctx, cacheSweepEvery)) })
	g.Go(func() error {
		logger.Info("Starting sourverse server",
			"addr", srv.Addr,
			"backend", cfg.DataBackend,
			"journal_publishing", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
