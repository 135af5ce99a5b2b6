package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/verity/internal/api"
	"github.com/MikeSquared-Agency/verity/internal/config"
	"github.com/MikeSquared-Agency/verity/internal/escrow"
	"github.com/MikeSquared-Agency/verity/internal/hermes"
	"github.com/MikeSquared-Agency/verity/internal/ledger"
	"github.com/MikeSquared-Agency/verity/internal/metadata"
	"github.com/MikeSquared-Agency/verity/internal/metrics"
	"github.com/MikeSquared-Agency/verity/internal/slack"
	"github.com/MikeSquared-Agency/verity/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("verity starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := cfg.LedgerParams()
	if err := params.Validate(); err != nil {
		slog.Error("invalid ledger configuration", "error", err)
		os.Exit(1)
	}

	// Database (optional: without it the journal lives in memory)
	var (
		db      *store.Store
		journal ledger.Journal
		history []ledger.Entry
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		history, err = db.LoadJournal(ctx)
		if err != nil {
			slog.Error("failed to load journal", "error", err)
			os.Exit(1)
		}
		journal = db
		slog.Info("database connected", "journal_entries", len(history))
	} else {
		journal = &ledger.MemoryJournal{}
		slog.Warn("DATABASE_URL not set, ledger state will not survive a restart")
	}

	// Metadata
	var backend metadata.Backend
	switch cfg.MetadataBackend {
	case "leveldb":
		ldb, err := metadata.OpenLevelDB(cfg.MetadataLevelDBPath)
		if err != nil {
			slog.Error("failed to open metadata store", "error", err)
			os.Exit(1)
		}
		defer ldb.Close()
		backend = ldb
	case "postgres":
		if db != nil {
			backend = db
			break
		}
		slog.Warn("postgres metadata backend requested without DATABASE_URL, using memory")
		backend = metadata.NewMemory()
	default:
		backend = metadata.NewMemory()
	}
	slog.Info("metadata store ready", "backend", cfg.MetadataBackend)

	// Escrow
	var esc ledger.Escrow
	if cfg.EscrowURL != "" {
		esc = escrow.NewHTTPClient(cfg.EscrowURL, cfg.EscrowAPIKey)
		slog.Info("settlement service configured", "url", cfg.EscrowURL)
	} else {
		esc = escrow.NewMemory()
		slog.Warn("ESCROW_URL not set, refunds are credited in memory only")
	}

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Slack alerts (optional)
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		poster := slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		if err := hermesClient.Subscribe(hermes.SubjectAll, poster.HandleEvent); err != nil {
			slog.Error("failed to subscribe slack alerts", "error", err)
			os.Exit(1)
		}
		slog.Info("slack alerts ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, running without operator alerts")
	}

	m := metrics.New()

	if len(cfg.Admins) == 0 {
		slog.Warn("VERITY_ADMINS not set, admin operations are disabled")
	}

	// Ledger
	l, err := ledger.New(params, ledger.NewAdminSet(cfg.Admins...), esc, slog.Default(),
		ledger.WithJournal(journal),
		ledger.WithEventSink(hermes.NewEventPublisher(hermesClient)),
		ledger.WithObserver(m),
	)
	if err != nil {
		slog.Error("failed to create ledger", "error", err)
		os.Exit(1)
	}
	if err := l.Replay(history); err != nil {
		slog.Error("failed to replay journal", "error", err)
		os.Exit(1)
	}
	for _, key := range l.Entities() {
		m.ObserveScore(key, l.TrustScore(key))
	}

	// HTTP API
	ready := func(ctx context.Context) error {
		if !hermesClient.Connected() {
			return errors.New("nats disconnected")
		}
		if db != nil {
			return db.Ping(ctx)
		}
		return nil
	}
	srv := api.NewServer(cfg.Port, api.Deps{
		Ledger:   l,
		Metadata: metadata.New(backend),
		Metrics:  m,
		APIToken: cfg.APIToken,
		Logger:   slog.Default(),
		Ready:    ready,
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := hermesClient.Publish("swarm.agent.verity.registered", map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
		"paused":    l.Paused(),
		"entities":  len(l.Entities()),
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("verity ready", "port", cfg.Port, "entities", len(l.Entities()))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown error", "error", err)
	}
	hermesClient.Drain(shutdownCtx)
	cancel()
	slog.Info("verity stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
