package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"BasketLedger/internal/config"
	"BasketLedger/internal/observability"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "basketd",
	Short: "Basket ledger and escrow order book service",
	Long: `basketd sequences basket, token and escrow commands through a single
deterministic engine, persists every outcome to Postgres and serves the
resulting state over gRPC and HTTP/JSON.`,
	SilenceUsage: true,
}

// Execute runs the root command with a context cancelled on SIGINT or
// SIGTERM. It is called once by main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file path (YAML, TOML or JSON)")
}

// loadConfig reads the configuration and points logging at it. The returned
// closer releases the log file.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	closer := observability.Setup(observability.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	return cfg, func() { _ = closer.Close() }, nil
}
