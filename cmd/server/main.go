// Command server runs the agent backend HTTP API.
//
// Startup order: env file, config, logging, database, tracing, background
// activity sink, service wiring, router, HTTP server with graceful shutdown.
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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/clients/agenthook"
	"github.com/1lyagent/agent-backend/internal/clients/colosseum"
	"github.com/1lyagent/agent-backend/internal/clients/openrouter"
	"github.com/1lyagent/agent-backend/internal/config"
	"github.com/1lyagent/agent-backend/internal/domain"
	httpapi "github.com/1lyagent/agent-backend/internal/http"
	"github.com/1lyagent/agent-backend/internal/observability"
	"github.com/1lyagent/agent-backend/internal/repo"
	"github.com/1lyagent/agent-backend/internal/services"
	"github.com/1lyagent/agent-backend/internal/sysutil"

	_ "github.com/1lyagent/agent-backend/docs"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// marketAdapter narrows the openrouter client to the credit service's
// Marketplace contract.
type marketAdapter struct {
	c *openrouter.Client
}

func (m marketAdapter) TopUp(ctx context.Context, amount decimal.Decimal) (string, error) {
	res, err := m.c.TopUp(ctx, amount)
	if err != nil {
		return "", err
	}
	return res.TxID(), nil
}

// @title        Agent Backend API
// @version      1.0
// @description  Credit accounting, request classification, and activity feed for an autonomous agent.
// @BasePath     /
func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	setupLogging(cfg)
	gin.SetMode(cfg.GinMode)

	db, err := openDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	sink := services.NewSink(db, 256)
	sink.Log(domain.EventAgentOnline, "backend started", nil)
	sink.Log(domain.EventStoreVerified, "database migrated and reachable", nil)

	agent := agenthook.New(cfg.Up.AgentURL, cfg.Auth.HookToken, cfg.Up.BackendBaseURL)
	market := marketAdapter{c: openrouter.New(cfg.Up.OpenRouterBaseURL, cfg.Up.OpenRouterAPIKey)}
	platform := colosseum.New(cfg.Up.ColosseumBaseURL, cfg.Up.ColosseumAPIKey)

	creditSvc := services.NewCreditService(db, sink, market,
		cfg.AutoBuy.TokenThreshold, cfg.AutoBuy.BalanceThreshold, cfg.AutoBuy.PurchaseAmount)
	creditSvc.SponsorTTL = cfg.IdempotencyTTL

	deps := httpapi.Deps{
		DB:        db,
		Sink:      sink,
		Requests:  services.NewRequestService(db, sink, agent),
		Credit:    creditSvc,
		Tokens:    services.NewTokenTrackerService(db),
		Influence: services.NewInfluenceService(db, sink, platform),
	}

	engine := gin.New()
	httpapi.RegisterRoutes(engine, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	// Drain queued activity events before closing the process.
	sink.Close()
	if err := shutdownOTel(ctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown error")
	}
}

// setupLogging configures zerolog: level from config, optional pretty
// console output for development, optional rotating file output.
func setupLogging(cfg config.Config) {
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MiB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// openDB selects the DSN by configured driver.
func openDB(cfg config.Config) (*gorm.DB, error) {
	if cfg.DBDriver == "postgres" {
		return repo.Open(cfg.DBDriver, cfg.DBDSN)
	}
	return repo.Open(cfg.DBDriver, cfg.DBPath)
}
