package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/testcraft/testcraft/pkg/api"
	"github.com/testcraft/testcraft/pkg/config"
	"github.com/testcraft/testcraft/pkg/llm/openai"
	"github.com/testcraft/testcraft/pkg/queue/rabbitmq"
	"github.com/testcraft/testcraft/pkg/storage/persistent"
	"github.com/testcraft/testcraft/pkg/syncer"
	"github.com/testcraft/testcraft/pkg/tracker/azure"

	"github.com/joho/godotenv"
)

const pushPollInterval = 5 * time.Second

func main() {

	// --- Logger Setup ---
	logLevel := slog.LevelInfo // Default
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// --- Load .env file (for local development only) ---
	// Only attempt to load a .env file if APP_ENV is not 'production'.
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			logger.Info("Could not load .env file, relying on environment variables", slog.String("error", err.Error()))
		} else {
			logger.Info("Loaded configuration from .env file for local development")
		}
	}

	// --- Configuration Loading ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Postgres_DSN == "" {
		logger.Error("PostgreSQL DSN (POSTGRES_DSN) is empty in configuration. Please ensure it's set in .env or environment variables.")
		os.Exit(1)
	}
	if cfg.AzureOrgURL == "" || cfg.AzurePAT == "" {
		logger.Error("Azure DevOps connection (AZURE_DEVOPS_ORG_URL, AZURE_DEVOPS_PAT) is not configured.")
		os.Exit(1)
	}

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger.Info("Starting TestCraft server...", slog.String("log_level", cfg.LogLevel))

	// --- Context for graceful shutdown ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Dependency Injection ---
	// Push queue (RabbitMQ)
	queueManager, err := rabbitmq.NewManager(cfg.RabbitMQ_URL, logger)
	if err != nil {
		logger.Error("Failed to initialize RabbitMQ queue manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer queueManager.Close()

	// Persistence (PostgreSQL + MinIO)
	store, err := persistent.NewStore(
		cfg.Postgres_DSN,
		cfg.MinIO_Endpoint,
		cfg.MinIO_AccessKey,
		cfg.MinIO_SecretKey,
		cfg.MinIO_BucketName,
		cfg.MinIO_UseSSL,
		logger,
	)
	if err != nil {
		logger.Error("Failed to initialize persistent store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	// Tracker (Azure DevOps) and suggestions (OpenAI)
	trackerClient := azure.NewClient(cfg.AzureOrgURL, cfg.AzurePAT)
	suggester := openai.NewClient(cfg.OpenAI_BaseURL, cfg.OpenAI_APIKey, cfg.OpenAI_Model)

	// Background worker syncing approved cases to the tracker
	worker := syncer.NewWorker(queueManager, store, trackerClient, logger, pushPollInterval, cfg.AzureProject)
	worker.Start(ctx)

	// API handler instance, injecting dependencies AND config
	apiHandler := api.NewAPI(store, queueManager, trackerClient, suggester, worker, logger, cfg)

	// --- Router Setup ---
	router := api.SetupRouter(apiHandler, cfg)
	logger.Info("API router configured")

	// --- HTTP Server Setup ---
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout + (5 * time.Second), // Slightly longer than handler timeout
		WriteTimeout: cfg.RequestTimeout + (5 * time.Second),
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	// --- Start Server Goroutine ---
	go func() {
		logger.Info("Server starting on address", "protocol", "http", "address", server.Addr)
		if err := server.ListenAndServe(); errors.Is(err, syscall.EADDRINUSE) {
			logger.Error("Port is already in use. Is another instance of the server already running?", slog.String("address", server.Addr))
			stop()
		} else if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP Server failed to start or unexpectedly closed", slog.String("error", err.Error()))
			stop()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("Shutdown signal received, starting graceful shutdown...")

	// --- Graceful Shutdown ---
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server graceful shutdown failed", slog.String("error", err.Error()))
	} else {
		logger.Info("Server gracefully stopped")
	}

	// Wait for the push worker to finish its current job
	worker.Wait()

	logger.Info("Shutdown complete.")
}
