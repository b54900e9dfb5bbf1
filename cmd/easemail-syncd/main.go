package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tdaniel1925/easemail-pro-sub002/internal/config"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/database"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/poller"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/provider"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/repository"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/scheduler"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/server"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/service"
)

func main() {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Infof("Database ready")

	accountRepo := repository.NewAccountRepository(db.Gorm)
	eventRepo := repository.NewSyncEventRepository(db.SQL)

	providerClient := provider.NewClient(
		cfg.ProviderBaseURL,
		cfg.ProviderAPIKey,
		cfg.ProviderClientID,
		cfg.ProviderClientSecret,
	)

	orchestrator := service.NewSyncOrchestrator(accountRepo, eventRepo, providerClient, logger)

	pollInterval := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	pollController := poller.New(providerClient, pollInterval, logger)

	persister := service.NewSnapshotPersister(accountRepo, logger)
	pollController.OnSnapshot(persister.Persist)

	autoSync, err := scheduler.New(cfg.AutoSyncSchedule, accountRepo, orchestrator, pollController, logger)
	if err != nil {
		logger.Fatalf("Invalid auto-sync schedule %q: %v", cfg.AutoSyncSchedule, err)
	}
	autoSync.Start()

	apiServer := server.NewServer(accountRepo, eventRepo, providerClient, orchestrator, pollController, logger)
	router := server.NewRouter(apiServer, db.SQL)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Infof("Listening on port %s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("Shutting down")

	autoSync.Stop()
	pollController.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warnf("HTTP server shutdown: %v", err)
	}

	logger.Infof("Shutdown complete")
}
