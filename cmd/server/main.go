// Command server runs the library backend: the REST API and, when the
// mailbox credentials are configured, the background email poller.
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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-library-backend/internal/config"
	"github.com/tbourn/go-library-backend/internal/dispatch"
	httpapi "github.com/tbourn/go-library-backend/internal/http"
	"github.com/tbourn/go-library-backend/internal/mail"
	"github.com/tbourn/go-library-backend/internal/nlp"
	"github.com/tbourn/go-library-backend/internal/observability"
	"github.com/tbourn/go-library-backend/internal/poller"
	"github.com/tbourn/go-library-backend/internal/repo"
	"github.com/tbourn/go-library-backend/internal/services"
	"github.com/tbourn/go-library-backend/internal/sysutil"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	engine := services.NewLibraryService(db)
	engine.LoanDays = cfg.LoanDays

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	httpapi.RegisterRoutes(router, engine, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	pollerDone := make(chan struct{})
	switch {
	case !cfg.Poller.Enabled:
		close(pollerDone)
	case !cfg.Graph.Enabled():
		log.Warn().Msg("email poller enabled but Graph credentials are incomplete, poller not started")
		close(pollerDone)
	default:
		mailbox := mail.NewGraphClient(
			cfg.Graph.TenantID, cfg.Graph.ClientID, cfg.Graph.ClientSecret, cfg.Graph.UserUPN,
		)
		classifier := nlp.NewGeminiClassifier(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout)
		dispatcher := dispatch.NewDispatcher(engine)

		p := poller.New(
			mailbox, classifier, dispatcher, engine, db,
			log.With().Str("component", "poller").Logger(),
			cfg.Poller.Interval, cfg.Poller.BatchSize,
		)
		go func() {
			defer close(pollerDone)
			p.Run(ctx)
		}()
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	select {
	case <-pollerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("poller did not stop before deadline")
	}

	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("server stopped")
}
