package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	databaseURL string
	natsURL     string
	natsToken   string
	outputJSON  bool
)

var rootCmd = &cobra.Command{
	Use:           "verityctl",
	Short:         "Operate the verity trust ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", envOr("NATS_URL", "nats://hermes:4222"), "NATS server URL")
	rootCmd.PersistentFlags().StringVar(&natsToken, "nats-token", os.Getenv("NATS_TOKEN"), "NATS auth token")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(keyCmd, scoreCmd, topCmd, auditCmd, watchCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
