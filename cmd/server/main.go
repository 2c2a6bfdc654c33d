// Command server runs the habit progress API: an event-sourced completion
// ledger with streaks, daily XP awards, and a self-healing reconciliation
// pass. Configuration comes from the environment (optionally a .env file);
// state lives in a local SQLite database.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/strideapp/go-habit-backend/internal/config"
	"github.com/strideapp/go-habit-backend/internal/domain"
	httpapi "github.com/strideapp/go-habit-backend/internal/http"
	"github.com/strideapp/go-habit-backend/internal/observability"
	"github.com/strideapp/go-habit-backend/internal/repo"
	"github.com/strideapp/go-habit-backend/internal/schedule"
	"github.com/strideapp/go-habit-backend/internal/services"
	"github.com/strideapp/go-habit-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// @title           Habit Progress API
// @version         1.0
// @description     Event-sourced habit completion ledger with streaks, daily XP awards, and reconciliation.
// @BasePath        /api/v1
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	host, _ := os.Hostname()
	log.Info().
		Str("version", version).
		Str("port", cfg.Port).
		Str("instance", sysutil.FirstNonEmpty(os.Getenv("HOSTNAME"), host, "local")).
		Msg("starting habit backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing first so DB and HTTP instrumentation attach to a live provider.
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	// The log is the source of truth; audit cached projections against it
	// before serving reads.
	if cfg.ReconcileOnBoot {
		runBootReconciliation(ctx, db, cfg)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("stopped")
}

// runBootReconciliation replays the event log against cached projections for
// every known user. Failures are logged, never fatal: a drifted cache will be
// repaired lazily on the next explicit reconcile.
func runBootReconciliation(ctx context.Context, db *gorm.DB, cfg config.Config) {
	cal, err := domain.NewCalendar(cfg.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("tz", cfg.Timezone).Msg("bad timezone, using UTC")
		cal = domain.UTCCalendar()
	}

	sched := schedule.NewService(db, cal)
	progress := services.NewProgressService(db, sched, cfg.MaxProgressDelta)
	reward := services.NewRewardService(db, sched, cfg.XPPerDay)
	streaks := services.NewStreakService(db, sched, cal)
	rec := services.NewReconcileService(db, progress, reward, streaks, log.Logger)

	users, err := repo.ListEventUsers(ctx, db)
	if err != nil {
		log.Error().Err(err).Msg("boot reconciliation: list users")
		return
	}
	for _, u := range users {
		if _, err := rec.Reconcile(ctx, u); err != nil {
			log.Error().Err(err).Str("user_id", u).Msg("boot reconciliation")
		}
	}
	log.Info().Int("users", len(users)).Msg("boot reconciliation done")
}
