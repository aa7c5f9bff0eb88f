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

	"github.com/brandondunbar/GiftSubTracker/internal/adapter/metrics"
	"github.com/brandondunbar/GiftSubTracker/internal/adapter/sheets"
	"github.com/brandondunbar/GiftSubTracker/internal/adapter/twitch"
	"github.com/brandondunbar/GiftSubTracker/internal/hub"
	"github.com/brandondunbar/GiftSubTracker/internal/ingest"
	"github.com/brandondunbar/GiftSubTracker/internal/platform/config"
	"github.com/brandondunbar/GiftSubTracker/internal/platform/logging"
	"github.com/brandondunbar/GiftSubTracker/internal/registry"
	"github.com/brandondunbar/GiftSubTracker/internal/server"
	"github.com/jonboulle/clockwork"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupSheets(cfg *config.Config) *sheets.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := sheets.NewClient(ctx, cfg.GoogleCredentialsPath)
	if err != nil {
		slog.Error("Failed to create Google Sheets client", "error", err)
		os.Exit(1)
	}
	return client
}

func setupRegistry(client *sheets.Client, cfg *config.Config) *registry.Registry {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg, err := registry.New(ctx, client.Values(), client.Provisioner(), cfg.ReferenceSpreadsheetID)
	if err != nil {
		slog.Error("Failed to initialize ledger registry", "error", err)
		os.Exit(1)
	}
	return reg
}

func setupIdentity(cfg *config.Config) *twitch.Identity {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	identity, err := twitch.NewIdentity(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.CallbackURL(), cfg.WebhookSecret, twitch.DefaultEndpoints())
	if err != nil {
		slog.Error("Failed to authenticate with Twitch", "error", err)
		os.Exit(1)
	}
	return identity
}

func runGracefulShutdown(srv *server.Server, liveHub *hub.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		liveHub.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	sheetsClient := setupSheets(cfg)
	ledgerRegistry := setupRegistry(sheetsClient, cfg)
	identity := setupIdentity(cfg)

	liveHub := hub.NewHub(clock)
	verifier := twitch.NewVerifier(cfg.WebhookSecret)
	ingestHandler := ingest.NewHandler(ledgerRegistry, liveHub)

	promRegistry := metrics.NewRegistry()

	srv, err := server.NewServer(cfg, identity, ledgerRegistry, ingestHandler, verifier, liveHub, promRegistry)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	provisioned := srv.LedgersProvisionedCounter()
	ledgerRegistry.OnProvision(func(string) { provisioned.Inc() })

	done := runGracefulShutdown(srv, liveHub)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
