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

	"github.com/provgate/gateway/internal/credential"
	"github.com/provgate/gateway/internal/infra"
	"github.com/provgate/gateway/internal/walletserver"
	"github.com/shopspring/decimal"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("wallet server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	opening, err := decimal.NewFromString(cfg.WalletServerOpeningCredit)
	if err != nil {
		return fmt.Errorf("parse WALLET_SERVER_OPENING_CREDIT: %w", err)
	}

	// Accept the wallet clients the gateway is configured with.
	var clients []walletserver.Client
	if creds, err := credential.Load(cfg.CredentialsFile); err == nil {
		for _, pair := range creds.WalletClients() {
			clients = append(clients, walletserver.Client{ID: pair[0], Secret: pair[1]})
		}
	} else {
		logger.Warn("credentials not loaded, accepting every client", "file", cfg.CredentialsFile, "error", err)
	}

	wl := walletserver.New(opening, clients, logger)

	addr := fmt.Sprintf(":%d", cfg.WalletServerPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      walletserver.NewRouter(wl),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("wallet server starting", "addr", addr, "opening_credit", opening.String(), "clients", len(clients))
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

	logger.Info("wallet server stopped gracefully")
	return nil
}
