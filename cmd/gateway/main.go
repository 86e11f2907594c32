package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/provgate/gateway/internal/auth"
	"github.com/provgate/gateway/internal/credential"
	"github.com/provgate/gateway/internal/gateway"
	"github.com/provgate/gateway/internal/guard"
	"github.com/provgate/gateway/internal/infra"
	"github.com/provgate/gateway/internal/lock"
	"github.com/provgate/gateway/internal/provider"
	"github.com/provgate/gateway/internal/repository"
	"github.com/provgate/gateway/internal/settlement"
	"github.com/provgate/gateway/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg, "gateway")
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if cfg.RunMigrations {
		if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Provider credentials
	creds, err := credential.Load(cfg.CredentialsFile)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	logger.Info("credentials loaded", "file", cfg.CredentialsFile,
		"sbo_currencies", creds.Currencies("sbo"), "cq9_currencies", creds.Currencies("cq9"))

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infra.NewMetrics(reg)

	// Wallet client
	breaker := guard.NewCircuitBreaker(cfg.WalletBreakerThreshold, cfg.WalletBreakerReset)
	walletClient := wallet.NewClient(cfg.WalletTimeout, breaker, logger, wallet.WithRecorder(metrics))

	// Per-reference lock
	var locker settlement.Locker = guard.NewKeyLock()
	if cfg.RedisEnabled {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL, logger)
		logger.Info("using redis transaction lock", "addr", cfg.RedisAddr)
	}

	tokens := auth.NewTokenManager(cfg.LaunchTokenSecret, cfg.LaunchTokenTTL)
	store := repository.NewStore(pool)

	newEngine := func(base settlement.Policy) *settlement.Engine {
		return settlement.NewEngine(creds.Policy(base), store, walletClient, creds, locker, logger,
			settlement.WithTokenVerifier(tokens),
			settlement.WithRecorder(metrics),
		)
	}
	sboEngine := newEngine(provider.SboPolicy())
	cq9Engine := newEngine(provider.CQ9Policy())

	r := gateway.NewRouter(gateway.Deps{
		DB:       pool,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Recorder: metrics,
		Engines: map[string]gateway.Provisioner{
			sboEngine.Provider(): sboEngine,
			cq9Engine.Provider(): cq9Engine,
		},
		Tokens:      tokens,
		Limiter:     guard.NewRateLimiter(cfg.LaunchRateLimit, cfg.LaunchRateWindow),
		OperatorKey: cfg.OperatorAPIKey,
		Sbo:         provider.NewSboAdapter(sboEngine, logger),
		CQ9:         provider.NewCQ9Adapter(cq9Engine, logger),
		Logger:      logger,
	})

	// SIGHUP reloads credentials. Conversion factors stay as loaded at startup.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := creds.Reload(); err != nil {
					logger.Error("credential reload failed", "error", err)
					continue
				}
				logger.Info("credentials reloaded")
			}
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.GatewayPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WalletTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("gateway stopped gracefully")
	return nil
}
