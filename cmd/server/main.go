// Command server runs the deal dashboard API and the background price
// refresh scheduler in a single process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-deal-backend/internal/config"
	"github.com/tbourn/go-deal-backend/internal/fetch"
	httpapi "github.com/tbourn/go-deal-backend/internal/http"
	"github.com/tbourn/go-deal-backend/internal/observability"
	"github.com/tbourn/go-deal-backend/internal/repo"
	"github.com/tbourn/go-deal-backend/internal/scheduler"
	"github.com/tbourn/go-deal-backend/internal/services"
	"github.com/tbourn/go-deal-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Optional .env for local development; real deployments use the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty)

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	log.Info().
		Str("version", appVersion).
		Str("port", cfg.Port).
		Str("db_path", cfg.DBPath).
		Dur("refresh_interval", cfg.Refresh.Interval).
		Msg("starting deal backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op unless OTEL_ENABLED).
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Storage.
	db, err := repo.OpenSQLite(cfg.DBPath, cfg.OTEL.Enabled)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	// Outbound fetcher with per-retailer pacing.
	fetchOpts := []fetch.Option{}
	if cfg.Refresh.UserAgent != "" {
		fetchOpts = append(fetchOpts, fetch.WithUserAgent(cfg.Refresh.UserAgent))
	}
	if cfg.Refresh.RetailerInterval > 0 {
		fetchOpts = append(fetchOpts, fetch.WithRetailerRate(rate.Every(cfg.Refresh.RetailerInterval), 1))
	}
	fetcher := fetch.NewHTTPFetcher(cfg.Refresh.FetchTimeout, fetchOpts...)

	// HTTP transport.
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, fetcher, cfg)

	// Background refresh loop. It shares the DB and fetcher with the API so
	// manual and scheduled refreshes go through the same pipeline.
	refreshSvc := services.NewRefreshService(
		db,
		fetcher,
		cfg.Refresh.FailureThreshold,
		cfg.Refresh.Concurrency,
		cfg.Refresh.FetchTimeout,
	)
	sched := scheduler.New(refreshSvc, cfg.Refresh.Interval)
	go sched.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("server failed")
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
