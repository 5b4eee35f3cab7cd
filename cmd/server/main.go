package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidtube/internal/account"
	"vidtube/internal/api"
	"vidtube/internal/auth"
	"vidtube/internal/blob"
	"vidtube/internal/cache"
	"vidtube/internal/config"
	"vidtube/internal/db"
	"vidtube/internal/email"
	"vidtube/internal/media"
	"vidtube/internal/session"
	"vidtube/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting server", "name", cfg.Server.Name)

	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.Info("database opened", "driver", database.Driver())

	users := db.NewUserRepository(database)
	sessions := db.NewSessionRepository(database)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	var blobService *blob.Service
	var host media.Host
	switch cfg.Storage.Driver {
	case "s3":
		s3Host, err := media.NewS3(backgroundCtx, cfg.Storage.S3, cfg.Storage.UploadMaxBytes)
		if err != nil {
			slog.Error("failed to initialize s3 media host", "error", err)
			os.Exit(1)
		}
		host = s3Host
		slog.Info("s3 media host initialized", "bucket", cfg.Storage.S3.Bucket, "region", cfg.Storage.S3.Region)
	default:
		blobService, err = blob.NewService(cfg.Storage.BlobRoot, cfg.Storage.UploadMaxBytes)
		if err != nil {
			slog.Error("failed to initialize blob storage", "error", err)
			os.Exit(1)
		}
		host = media.NewLocal(blobService, cfg.Server.BaseURL)
		slog.Info("blob storage initialized", "root", cfg.Storage.BlobRoot, "upload_max_bytes", cfg.Storage.UploadMaxBytes)

		go blob.NewCleanupService(users, blobService).Start(backgroundCtx)
	}

	go db.NewCleanupService(sessions).Start(backgroundCtx)

	tokens := auth.NewTokenIssuer(
		cfg.Auth.AccessTokenSecret,
		cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	hub := ws.NewHub()

	manager := session.NewManager(users, sessions, tokens)
	manager.SetSessionNotifier(hub)
	guard := session.NewGuard(tokens, users)
	accounts := account.NewService(users, host)

	health := map[string]api.Pinger{"database": database}

	if cfg.Cache.RedisURL != "" {
		identities, err := cache.Open(backgroundCtx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer identities.Close()

		guard.SetIdentityCache(identities)
		accounts.SetCacheInvalidator(identities)
		health["cache"] = api.PingFunc(identities.Ping)
		slog.Info("identity cache enabled", "ttl", cfg.Cache.TTL)
	}

	if cfg.EmailEnabled() {
		manager.SetPasswordNotifier(email.NewSMTPService(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
			cfg.Email.SMTP.From,
		))
		slog.Info("email configured", "host", cfg.Email.SMTP.Host, "port", cfg.Email.SMTP.Port)
	}

	server, err := api.NewServer(api.Dependencies{
		Config:   cfg,
		Sessions: manager,
		Guard:    guard,
		Accounts: accounts,
		Hub:      hub,
		Blobs:    blobService,
		Health:   health,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	backgroundCancel()

	server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
