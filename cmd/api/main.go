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

	"github.com/gfgkiit/trapped/internal/cache"
	httpx "github.com/gfgkiit/trapped/internal/http"
	"github.com/gfgkiit/trapped/internal/service/auth"
	"github.com/gfgkiit/trapped/internal/service/export"
	"github.com/gfgkiit/trapped/internal/service/registration"
	"github.com/gfgkiit/trapped/internal/service/stats"
	"github.com/gfgkiit/trapped/internal/service/team"
	"github.com/gfgkiit/trapped/internal/validation"
	"github.com/gfgkiit/trapped/internal/ws"
	"github.com/gfgkiit/trapped/pkg/config"
	"github.com/gfgkiit/trapped/pkg/crypto"
	"github.com/gfgkiit/trapped/pkg/logger"
)

func main() {
	boot := logger.New("api", slog.LevelInfo)
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		boot.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		boot.Warn("unknown log level, using info", "value", cfg.LogLevel)
	}
	log := logger.New("api", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := validation.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Error("failed to load validation policy", "error", err)
		os.Exit(1)
	}
	validator := validation.New(policy)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("store close failed", "error", err)
		}
	}()

	feed := ws.NewHub()
	defer feed.Close()

	statsSvc := stats.New(feed, log, cfg.StatsBucketSpan, cfg.StatsFlushInterval)
	if err := statsSvc.Seed(ctx, store, store); err != nil {
		log.Warn("failed to seed admission stats", "error", err)
	}
	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		statsSvc.Run(ctx)
	}()

	devices := cache.New[bool]("devices", cfg.DeviceCacheTTL, cache.DefaultCleanupInterval)
	registrationSvc := registration.New(store, validator, log, registration.Options{
		Devices:   devices,
		DeviceTTL: cfg.DeviceCacheTTL,
		Feed:      statsSvc,
	})
	teamSvc := team.New(store, validator, statsSvc, log)
	exportSvc := export.New(registrationSvc, teamSvc, cfg.ExportLocation())
	authSvc := auth.New(log, cfg)
	if !cfg.AdminEnabled() {
		log.Warn("admin credentials not configured; admin endpoints will reject every request")
	} else if cost, err := crypto.CheckHash(cfg.AdminPasswordHash); err != nil {
		log.Error("invalid ADMIN_PASSWORD_HASH", "error", err)
		os.Exit(1)
	} else if cost < crypto.MinCost {
		log.Warn("admin password hash uses a low bcrypt cost", "cost", cost, "min", crypto.MinCost)
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(ctx, addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, httpx.Services{
		Auth:          authSvc,
		Registrations: registrationSvc,
		Teams:         teamSvc,
		Export:        exportSvc,
		Feed:          feed,
		Stats:         statsSvc,
	}, httpx.Options{
		Limiter:         limiter,
		SubmitPerMinute: cfg.SubmitPerMinute,
		LookupPerMinute: cfg.LookupPerMinute,
		DBHealth:        store.Ping,
		Heartbeat:       cfg.StreamHeartbeatEvery,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreDriver, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		<-statsDone
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
