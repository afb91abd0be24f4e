package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookstore/internal/ratelimit"
	"bookstore/internal/usertoken"
	"bookstore/internal/util"
	"bookstore/pkg/store"
	"bookstore/services/book/internal/app"
	"bookstore/services/book/internal/config"
	"bookstore/services/book/internal/server"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			logger.Info("book service stopped before serving")
			return
		}
		logger.Error("book service stopped", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) error {
	dial, err := store.GormDialer(store.ConnConfig{
		Driver:       cfg.DatabaseDriver,
		Host:         cfg.DatabaseHost,
		Port:         cfg.DatabasePort,
		User:         cfg.DatabaseUser,
		Password:     cfg.DatabasePassword,
		Database:     cfg.DatabaseName,
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		DialTimeout:  5 * time.Second,
	})
	if err != nil {
		return err
	}
	supervisor, err := store.NewSupervisor(store.SupervisorConfig{
		Dial:        dial,
		MaxAttempts: cfg.DBMaxRetries,
		RetryDelay:  cfg.RetryDelay(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	// No listener exists until the database connection does.
	db, err := supervisor.Acquire(ctx)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	var refreshLimiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		redisLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "bookstore:jwks", cfg.JWKSRequestsPerMinute, time.Minute)
		if err != nil {
			return err
		}
		defer redisLimiter.Close()
		refreshLimiter = redisLimiter
	}
	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:           cfg.JWKSURL,
		Issuer:            cfg.JWTIssuer,
		Audience:          cfg.JWTAudience,
		Leeway:            cfg.Leeway(),
		CacheTTL:          cfg.CacheTTL(),
		RequestsPerMinute: cfg.JWKSRequestsPerMinute,
		RefreshLimiter:    refreshLimiter,
		HTTPClient:        &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		return err
	}
	if err := tokenVerifier.Prefetch(ctx); err != nil {
		logger.Warn("jwks prefetch failed, keys will be fetched on demand", "err", err)
	}

	appCore, err := app.New(app.Config{Store: store.NewGormStore(db)})
	if err != nil {
		return err
	}
	httpServer, err := server.New(server.Config{
		App:           appCore,
		TokenVerifier: tokenVerifier,
	})
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("book server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("book server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
