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

	"click2call-gateway/internal/auth"
	"click2call-gateway/internal/config"
	"click2call-gateway/internal/lifecycle"
	"click2call-gateway/internal/provider"
	"click2call-gateway/internal/session"
	"click2call-gateway/pkg/logger"
	"click2call-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
)

const sessionSweepInterval = 30 * time.Second

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	providerClient := provider.NewNetSapiens(cfg.Provider)

	store := session.NewStore()
	go store.Janitor(rootCtx, sessionSweepInterval, cfg.Calls.SessionRetention)

	manager := lifecycle.NewManager(providerClient, store, lifecycle.Config{
		PollInterval:         cfg.Calls.PollInterval,
		EndConfirmTimeout:    cfg.Calls.EndConfirmTimeout,
		PollFailureThreshold: cfg.Calls.PollFailureThreshold,
		CallbackURL:          callbackURL(cfg.Provider.CallbackBaseURL),
	}, log)
	go manager.Run(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, manager, authManager, rdb, cfg)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "provider", providerClient.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

func callbackURL(base string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/api/calls/callback"
}
