// Package main is the entry point for the Fundament financial data API.
// It aggregates corporate fundamentals from multiple upstream providers,
// derives valuation metrics, and manages the Schwab OAuth connection used
// for real-time quotes.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/openfund/fundament/internal/clientdata"
	"github.com/openfund/fundament/internal/clients/alphavantage"
	"github.com/openfund/fundament/internal/clients/polygon"
	"github.com/openfund/fundament/internal/clients/schwab"
	"github.com/openfund/fundament/internal/clients/yahoo"
	"github.com/openfund/fundament/internal/config"
	"github.com/openfund/fundament/internal/database"
	"github.com/openfund/fundament/internal/domain"
	"github.com/openfund/fundament/internal/fundamentals"
	"github.com/openfund/fundament/internal/reliability"
	"github.com/openfund/fundament/internal/scheduler"
	"github.com/openfund/fundament/internal/server"
	"github.com/openfund/fundament/internal/tokenstore"
	"github.com/openfund/fundament/pkg/logger"
)

// backupRetentionDays is how long R2 backups are kept before rotation.
const backupRetentionDays = 30

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New("info", true)
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.LogLevel, cfg.DevMode)
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Bool("dev_mode", cfg.DevMode).
		Msg("Starting Fundament")

	// Cache database for provider responses.
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "client_data.db"),
		Profile: database.ProfileCache,
		Name:    "client_data",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	cacheRepo := clientdata.NewRepository(cacheDB.Conn())
	if err := cacheRepo.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cache database")
	}

	// Provider adapters. Yahoo is always available; keyed providers are
	// registered only when their credential is present.
	defaultProvider := domain.ProviderYahoo
	if cfg.DefaultProvider != "" {
		parsed, err := domain.ParseProvider(cfg.DefaultProvider)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid default provider")
		}
		defaultProvider = parsed
	}

	fundamentalsService := fundamentals.NewService(defaultProvider, cfg.EnableFallback, log)
	fundamentalsService.Register(yahoo.NewClient(cacheRepo, log))

	if cfg.HasPolygonKey() {
		fundamentalsService.Register(polygon.NewClient(cfg.PolygonAPIKey, cacheRepo, log))
		log.Info().Msg("Polygon adapter registered")
	}

	var avClient *alphavantage.Client
	if cfg.HasAlphaVantageKey() {
		avClient = alphavantage.NewClient(cfg.AlphaVantageAPIKey, cacheRepo, log)
		fundamentalsService.Register(avClient)
		log.Info().Msg("Alpha Vantage adapter registered")
	}

	// Schwab OAuth client. The token store always exists so the OAuth
	// status endpoints work; without an encryption key configured a
	// placeholder passphrase is used and a warning logged, since no real
	// tokens can be stored before the app credentials are set anyway.
	passphrase := cfg.SchwabEncryptionKey
	if passphrase == "" {
		log.Warn().Msg("SCHWAB_ENCRYPTION_KEY not set, token store uses a placeholder key")
		passphrase = "fundament-unconfigured"
	}
	tokenStore, err := tokenstore.New(filepath.Join(cfg.DataDir, "schwab_tokens.bin"), passphrase, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token store")
	}
	schwabClient := schwab.NewClient(cfg.SchwabAppKey, cfg.SchwabAppSecret, cfg.SchwabRedirectURI, tokenStore, log)

	// Background jobs.
	sched := scheduler.New(log)

	cleanupJob := clientdata.NewCleanupJob(cacheRepo, log)
	if err := sched.AddJob("0 0 3 * * *", cleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup job")
	}

	if avClient != nil {
		if err := sched.AddJob("0 0 0 * * *", alphavantage.NewQuotaResetJob(avClient, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register quota reset job")
		}
	}

	if schwabClient.Configured() {
		if err := sched.AddJob("0 0 * * * *", schwab.NewRefreshJob(schwabClient, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register token refresh job")
		}
	}

	if cfg.BackupsEnabled() {
		r2Client, err := reliability.NewR2Client(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Bucket, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create R2 client")
		}
		backupService := reliability.NewBackupService(r2Client, cfg.DataDir, log)
		if err := sched.AddJob("0 30 2 * * *", reliability.NewBackupJob(backupService, backupRetentionDays, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
		log.Info().Str("bucket", cfg.R2Bucket).Msg("R2 backups enabled")
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server.
	srv := server.New(server.Config{
		Log:          log,
		Config:       cfg,
		Fundamentals: fundamentalsService,
		Schwab:       schwabClient,
		CacheDB:      cacheDB,
		Scheduler:    sched,
		CleanupJob:   cleanupJob,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Fundament stopped")
}
