/*
Package main is the entry point for the dmchat server.

It loads configuration, initializes logging, opens the database, connects media storage,
starts the realtime dispatcher and the HTTP server, and shuts everything down in order
when the process receives SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmchat/internal/app/db"
	"dmchat/internal/app/message"
	"dmchat/internal/app/presence"
	"dmchat/internal/app/realtime"
	"dmchat/internal/app/storage"
	"dmchat/internal/configs"
	"dmchat/internal/handler"
	"dmchat/internal/pkg/logx"
)

func main() {
	// Load configuration from .env and the environment
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.LogLevel, cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("media_enabled", cfg.MediaEnabled()).
		Bool("ws_heartbeat", cfg.WSHeartbeat).
		Bool("ws_evict_superseded", cfg.WSEvictSuperseded).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to database")
	}

	deps := &handler.AppDeps{
		Config: cfg,
		Users:  db.NewUserRepository(pool),
	}

	var images message.ImageUploader
	if cfg.MediaEnabled() {
		media, err := storage.NewMediaStore(ctx, storage.Config{
			BucketName:      cfg.S3BucketName,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			MaxImageBytes:   cfg.MediaMaxBytes,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize media storage")
		}
		deps.Media = media
		images = media
	} else {
		logx.Warn("Media storage is not configured; image uploads are disabled")
	}

	deps.Dispatcher = realtime.NewDispatcher(presence.NewRegistry(), realtime.Options{
		EvictSuperseded: cfg.WSEvictSuperseded,
	})
	deps.Messages = message.NewService(db.NewMessageRepository(pool), deps.Dispatcher, images)

	router, stopRouter := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info("dmchat server starting", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// WebSocket connections are hijacked, so the server does not wait for them.
	deps.Dispatcher.Shutdown()
	stopRouter()
	pool.Close()

	logx.Info("Server gracefully stopped.")
}
