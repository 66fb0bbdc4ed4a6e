package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/app"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/config"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "servermonitor",
	Short: "Host monitoring agent with Telegram notifications",
	Long: `servermonitor watches CPU, RAM, disk, temperature, SSH logins and
internet connectivity on a host and sends alert, reminder and recovery
notifications over Telegram. A small web UI exposes the settings.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the configuration file")
}

func run() error {
	cfg, err := config.NewManager(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	snap := cfg.Snapshot()

	logger, err := logging.NewLogger(snap.LogDir)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting servermonitor",
		zap.String("addr", snap.Addr),
		zap.String("store", snap.Store.Backend),
		zap.String("config", configPath))

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
