package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	adapthttp "weighttracker/internal/adapter/http"
	"weighttracker/internal/adapter/memory"
	"weighttracker/internal/adapter/postgres"
	"weighttracker/internal/adapter/sqlite"
	"weighttracker/internal/app"
	"weighttracker/internal/config"
	"weighttracker/internal/domain"
	"weighttracker/internal/logger"
	"weighttracker/internal/maintenance"
	"weighttracker/internal/observability"
	"weighttracker/internal/worker"
)

// store bundles the repositories of one backend.
type store struct {
	users        domain.UserRepository
	sessions     domain.SessionRepository
	measurements domain.MeasurementRepository
	closer       io.Closer
}

func openStore(cfg *config.Config) (*store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &store{users: db, sessions: postgres.NewSessionRepo(db), measurements: db, closer: db}, nil
	case config.StoreMemory:
		db := memory.New()
		return &store{users: db, sessions: db.NewSessionRepo(), measurements: db, closer: db}, nil
	default:
		db, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return &store{users: db, sessions: sqlite.NewSessionRepo(db), measurements: db, closer: db}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogPretty); err != nil {
		log.Fatal().Err(err).Msg("invalid LOG_LEVEL")
	}

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("failed to open store")
	}
	log.Info().Str("store", cfg.Store).Msg("store ready")

	authSvc := app.NewAuthService(st.users, st.sessions).WithSessionTTL(cfg.SessionTTL)
	weightSvc := app.NewWeightService(st.measurements)
	queue := worker.New(cfg.WorkerBuffer, observability.Default)
	tracker := app.NewTracker(authSvc, weightSvc, queue, st.closer)

	var sso *adapthttp.SSO
	if cfg.OIDC.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sso, err = adapthttp.NewSSO(ctx, cfg.OIDC.Issuer, cfg.OIDC.ClientID, cfg.OIDC.ClientSecret, cfg.OIDC.RedirectURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialise sso")
		}
		log.Info().Str("issuer", cfg.OIDC.Issuer).Msg("sso enabled")
	}

	janitor, err := maintenance.NewJanitor(authSvc, maintenance.DefaultSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule maintenance")
	}
	janitor.Start()

	h := adapthttp.New(tracker, authSvc, adapthttp.Options{
		SSO:         sso,
		CORSOrigins: cfg.CORSOrigins,
		SessionTTL:  cfg.SessionTTL,
		Metrics:     observability.Default,
	}).Handler()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
	janitor.Stop(ctx)
	if err := tracker.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("tracker shutdown incomplete")
	}
	log.Info().Msg("server exiting")
}
