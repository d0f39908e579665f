package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alphabot-ai/pressbutton/internal/auth"
	"github.com/alphabot-ai/pressbutton/internal/config"
	httpapp "github.com/alphabot-ai/pressbutton/internal/http"
	"github.com/alphabot-ai/pressbutton/internal/question"
	"github.com/alphabot-ai/pressbutton/internal/rate"
	"github.com/alphabot-ai/pressbutton/internal/store"
	"github.com/alphabot-ai/pressbutton/internal/store/postgres"
	"github.com/alphabot-ai/pressbutton/internal/store/sqlite"
)

func runServer() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := config.Load()
	cfg.Version = version

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "dev-jwt-secret" {
		logger.Warn("using the development JWT secret; set PRESSBUTTON_JWT_SECRET")
	}

	st, err := openStore(cfg.DB)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.DB.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	limiter := rate.NewMemory()
	authSvc := auth.NewService(st, cfg.JWTSecret, cfg.TokenTTL, cfg.BcryptCost)
	questions := question.NewService(st, logger)
	server := httpapp.NewServer(st, questions, authSvc, limiter, cfg, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("pressbutton listening", "addr", cfg.Addr, "driver", cfg.DB.Driver, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
}

func openStore(cfg config.DB) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(cfg.URL, postgres.Options{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			AutoMigrate:     cfg.AutoMigrate,
		})
	default:
		return sqlite.Open(cfg.Path)
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
