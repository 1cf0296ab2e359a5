// Package main is the entry point for the ibfolio portfolio snapshot gateway.
// It sits in front of a locally running IB Client Portal Gateway, computes
// portfolio snapshots on demand or on schedule, and persists them to SQLite.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
	"github.com/dchernov/ibfolio/internal/config"
	"github.com/dchernov/ibfolio/internal/database"
	"github.com/dchernov/ibfolio/internal/modules/auth"
	"github.com/dchernov/ibfolio/internal/modules/marketdata"
	"github.com/dchernov/ibfolio/internal/modules/snapshot"
	"github.com/dchernov/ibfolio/internal/reliability"
	"github.com/dchernov/ibfolio/internal/scheduler"
	"github.com/dchernov/ibfolio/internal/server"
	"github.com/dchernov/ibfolio/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting ibfolio")

	// Snapshot database
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "snapshots.db"),
		Name:    "snapshots",
		Profile: database.ProfileLedger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open snapshot database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate snapshot database")
	}

	// Upstream gateway client
	gatewayClient := ibgateway.NewClient(
		cfg.GatewayURL,
		time.Duration(cfg.GatewayTimeoutSeconds)*time.Second,
		log,
	)

	// Market data field table, optionally overridden from disk
	fieldTable, err := marketdata.LoadFieldTable(cfg.FieldTablePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.FieldTablePath).Msg("Failed to load field table")
	}
	decoder := marketdata.NewDecoder(fieldTable)

	// Snapshot pipeline
	resolver, err := snapshot.NewHeaderResolver(gatewayClient, cfg.ReportingTimezone, log)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.ReportingTimezone).Msg("Invalid reporting timezone")
	}

	assembler := snapshot.NewAssembler(gatewayClient, decoder, cfg.HistoryPeriod, cfg.HistoryConcurrency, log)
	repo := snapshot.NewRepository(db.Conn(), log)
	snapshotService := snapshot.NewService(gatewayClient, assembler, resolver, repo, cfg.Watchlist, log)

	// Bearer auth, enabled only when credentials are configured
	var authStore *auth.TokenStore
	if cfg.AuthUsername != "" {
		authStore = auth.NewTokenStore(time.Duration(cfg.TokenTTLMinutes) * time.Minute)
		log.Info().Msg("API auth enabled for mutating requests")
	} else {
		log.Warn().Msg("API auth disabled, mutating requests are open")
	}

	// Background jobs
	sched := scheduler.New(log)

	maintenance := reliability.NewMaintenanceService(db, log)
	if err := sched.AddJob("@hourly", scheduler.NewMaintenanceJob(maintenance, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}

	if cfg.SnapshotSchedule != "" {
		if err := sched.AddJob(cfg.SnapshotSchedule, scheduler.NewSnapshotJob(snapshotService, log)); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.SnapshotSchedule).Msg("Failed to register snapshot job")
		}
	}

	if cfg.Backup != nil && cfg.Backup.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		s3Client, err := reliability.NewS3Client(
			ctx,
			cfg.Backup.Endpoint,
			cfg.Backup.AccessKeyID,
			cfg.Backup.SecretAccessKey,
			cfg.Backup.Bucket,
			log,
		)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage client")
		}

		backupService := reliability.NewBackupService(s3Client, db, cfg.DataDir, log)
		schedule := cfg.Backup.Schedule
		if schedule == "" {
			schedule = "@daily"
		}
		backupJob := scheduler.NewBackupJob(backupService, cfg.Backup.RetentionDays, log)
		if err := sched.AddJob(schedule, backupJob); err != nil {
			log.Fatal().Err(err).Str("schedule", schedule).Msg("Failed to register backup job")
		}
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Log:             log,
		Config:          cfg,
		DB:              db,
		GatewayClient:   gatewayClient,
		SnapshotService: snapshotService,
		AuthStore:       authStore,
		Port:            cfg.Port,
		DevMode:         cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
