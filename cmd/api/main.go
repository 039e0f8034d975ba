package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"retro/api/internal/app"
	"retro/api/internal/auth"
	"retro/api/internal/config"
	"retro/api/internal/credentials"
	"retro/api/internal/email"
	"retro/api/internal/export"
	"retro/api/internal/logging"
	"retro/api/internal/realtime"
	"retro/api/internal/retro"
	"retro/api/internal/store"
)

// backend is what both the engine and the HTTP service need from storage.
type backend interface {
	retro.Store
	Ping(ctx context.Context) error
	CreateSession(ctx context.Context, session store.Session) error
	InsertParticipant(ctx context.Context, participant store.Participant) error
	DeleteSession(ctx context.Context, sessionID string) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	ctx := context.Background()

	var dataStore backend
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir))
		if err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		logger.Info("database ready", "migrations_applied", applied)
		dataStore = store.NewPostgresStore(db)
	} else {
		logger.Warn("DATABASE_URL not set, sessions are kept in memory")
		dataStore = store.NewMemoryStore()
	}

	serviceOpts := []app.Option{app.WithLogger(logger)}
	gate := auth.NewGate([]byte(cfg.JWTSecret), nil)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		registry, err := credentials.NewRedisRegistry(cfg.RedisURL)
		if err != nil {
			logger.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer registry.Close()
		gate = auth.NewGate([]byte(cfg.JWTSecret), registry)
		serviceOpts = append(serviceOpts, app.WithRegistry(registry))
		logger.Info("credential registry enabled")
	}

	exportOpts := []export.Option{export.WithLogger(logger)}
	if strings.TrimSpace(cfg.ExportEndpoint) != "" {
		archiver, err := export.NewMinioArchiver(export.ArchiveConfig{
			Endpoint:  cfg.ExportEndpoint,
			Bucket:    cfg.ExportBucket,
			AccessKey: cfg.ExportAccessKey,
			SecretKey: cfg.ExportSecretKey,
			UseSSL:    cfg.ExportUseSSL,
		})
		if err != nil {
			logger.Error("export archive setup failed", "error", err)
			os.Exit(1)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := archiver.EnsureBucket(bucketCtx); err != nil {
			logger.Warn("export bucket unavailable", "bucket", cfg.ExportBucket, "error", err)
		}
		cancel()
		exportOpts = append(exportOpts, export.WithArchiver(archiver))
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		logger.Info("SMTP not configured, invitations are returned as links only")
	}

	directory := retro.NewDirectory(logger)
	engine := retro.NewEngine(dataStore, gate, directory, retro.WithLogger(logger))
	ws := realtime.NewHandler(engine, logger, realtime.Limits{
		MaxPayloadBytes:    cfg.WSMaxPayloadBytes,
		MaxFramesPerSecond: cfg.WSMaxFramesPerSec,
		WriteTimeout:       cfg.WSWriteTimeout,
	}, cfg.CORSOrigin)

	serviceOpts = append(serviceOpts,
		app.WithMailer(mailer),
		app.WithRooms(directory),
		app.WithExporter(export.NewService(dataStore, exportOpts...)),
	)
	service := app.New(cfg, dataStore, gate, serviceOpts...)

	httpServer := app.NewHTTPServer(service, ws, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("retro API listening", "addr", cfg.Addr, "client_url", cfg.ClientURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	logger.Info("shutting down", "open_connections", directory.CloseAll())
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
