package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/psp-tools/group-archive/app/api"
	"github.com/psp-tools/group-archive/app/cfg"
	"github.com/psp-tools/group-archive/app/database"
	"github.com/psp-tools/group-archive/app/ingest"
	"github.com/psp-tools/group-archive/app/message"
	"github.com/psp-tools/group-archive/app/source"
	"github.com/psp-tools/group-archive/app/tasks"
)

func main() {
	// Local development convenience; a missing .env file is fine.
	godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if c == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if c.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Group Archive server", "version", c.Version)

	db, err := database.NewConnection(c.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", c.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", c.DBPath, "schema_version", version, "dirty", dirty)

	messageRepo := database.NewMessageRepository(db)
	stateRepo := database.NewSyncStateRepository(db)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	client := source.NewClient(httpClient, c.SourceBaseUrl, c.SourceToken, c.GroupID, c.UserAgent)
	normalizer := message.NewNormalizer()

	syncer := ingest.NewIncrementalSyncer(client, normalizer, messageRepo, stateRepo,
		c.PageSize, c.MaxPerCycle)
	backfillRunner := ingest.NewBackfillRunner(client, normalizer, messageRepo, stateRepo,
		c.PageSize, time.Duration(c.BackfillDelay)*time.Second)

	slog.Info("Starting background scheduler", "workers", c.WorkerCount,
		"fetch_interval", c.FetchInterval, "backfill", c.BackfillEnabled)
	scheduler := tasks.NewScheduler(syncer, backfillRunner, messageRepo)
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(messageRepo, stateRepo, db)
	server := api.NewServer(apiHandler)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", c.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer; an interrupted backfill run finishes
	// its in-flight page and checkpoints before returning.
	slog.Info("Shutdown complete")
}
