package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/khelarena/arena-admin/config"
	"github.com/khelarena/arena-admin/db"
	"github.com/khelarena/arena-admin/events"
	"github.com/khelarena/arena-admin/handlers"
	"github.com/khelarena/arena-admin/repositories"
	api "github.com/khelarena/arena-admin/routes"
	"github.com/khelarena/arena-admin/services"
	"github.com/khelarena/arena-admin/storage"
	_ "github.com/lib/pq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Cloudflare R2 uploader initialized")

	statusHub := events.NewHub(logger)
	go statusHub.Run()
	logger.Info("status event hub started")

	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	walletRepo := repositories.NewPostgresWalletRepository(dbConn)
	logger.Info("repositories initialized")

	beginTx := func(ctx context.Context) (services.Tx, error) {
		return dbConn.BeginTx(ctx, nil)
	}

	authService := services.NewAuthService(cfg.AdminEmail, cfg.AdminPasswordHash)
	tournamentService := services.NewTournamentService(beginTx, tournamentRepo, walletRepo, uploader, statusHub)
	ledgerService := services.NewLedgerService(walletRepo)
	lifecycleService := services.NewLifecycleService(tournamentRepo, statusHub, logger)
	adminService := services.NewAdminService(tournamentService, ledgerService, lifecycleService, logger)
	logger.Info("services initialized")

	// Background lifecycle reconciliation. The listing path reconciles
	// too; this loop keeps statuses fresh between listings.
	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	defer stopReconcile()
	go func() {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		logger.Info("lifecycle reconciler started", slog.Duration("interval", cfg.ReconcileInterval))

		runOnce := func() {
			report, err := lifecycleService.ReconcileAll(reconcileCtx, time.Now())
			if err != nil {
				logger.Error("reconciliation pass failed", slog.Any("error", err))
				return
			}
			if report.Updated > 0 || len(report.Failures) > 0 {
				logger.Info("reconciliation pass finished",
					slog.Int("checked", report.Checked),
					slog.Int("updated", report.Updated),
					slog.Int("failed", len(report.Failures)))
			}
		}

		runOnce()
		for {
			select {
			case <-ticker.C:
				runOnce()
			case <-reconcileCtx.Done():
				logger.Info("lifecycle reconciler stopped")
				return
			}
		}
	}()

	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	tournamentHandler := handlers.NewTournamentHandler(adminService)
	walletHandler := handlers.NewWalletHandler(adminService)
	webSocketHandler := handlers.NewWebSocketHandler(statusHub)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	api.SetupRoutes(router, cfg.JWTSecretKey, authHandler, tournamentHandler, walletHandler, webSocketHandler)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stopReconcile()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
