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

	"github.com/gin-gonic/gin"
	"github.com/infinity-finance/backend/internal/client"
	"github.com/infinity-finance/backend/internal/config"
	"github.com/infinity-finance/backend/internal/db"
	"github.com/infinity-finance/backend/internal/handler"
	"github.com/infinity-finance/backend/internal/hash"
	"github.com/infinity-finance/backend/internal/logging"
	"github.com/infinity-finance/backend/internal/service"
	"golang.org/x/crypto/bcrypt"
)

type store interface {
	service.UserDirectory
	service.DenylistStore
	service.ResetTokenStore
}

// @title Infinity Finance API
// @version 1.0
// @description Authentication and account API for the Infinity personal finance backend.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.
func main() {
	cfg := config.Load()

	logger := logging.New(cfg.Log.Level)
	slog.SetDefault(logger)
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("store init failed", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	notifier, err := client.NewNotifier(cfg)
	if err != nil {
		logger.Error("notifier init failed", "driver", cfg.Notify.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("notifier close error", "error", err)
		}
	}()

	hasher := hash.NewBcrypt(bcrypt.DefaultCost)
	authService, err := service.NewAuthService(service.AuthDeps{
		Users:    st,
		Denylist: st,
		Resets:   st,
		Notifier: notifier,
		Hasher:   hasher,
	}, cfg.Auth)
	if err != nil {
		logger.Error("auth init failed", "error", err)
		os.Exit(1)
	}
	userService := service.NewUserService(st, hasher)

	interval, err := time.ParseDuration(cfg.Cleanup.Interval)
	if err != nil {
		logger.Warn("invalid DENYLIST_CLEANUP_INTERVAL, using default", "value", cfg.Cleanup.Interval, "default", service.DefaultCleanupInterval)
		interval = service.DefaultCleanupInterval
	}
	cleanup := service.NewCleanupTask(st, st, interval)
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		cleanup.Start(ctx)
	}()

	router := handler.NewRouter(handler.RouterDeps{
		Auth:           authService,
		Users:          userService,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	<-cleanupDone

	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "memory":
		return db.NewMemory(), func() {}, nil
	default:
		pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		pg := db.NewPostgres(pool)
		if err := pg.EnsureAuthSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	}
}
