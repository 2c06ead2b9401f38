package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/guided-traffic/payload-gateway/internal/config"
	"github.com/guided-traffic/payload-gateway/internal/gateway"
	"github.com/guided-traffic/payload-gateway/internal/monitoring"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	// Build information injected at build time
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "payload-gateway",
		Short: "Payload Gateway reads HTTP request bodies into data, streams or files",
		Long: `Payload Gateway sits in front of application code and turns raw request
bodies into ready-to-use payloads.

Per route it enforces:
- a maximum payload size, checked against Content-Length before any byte is read
- an optional allow-list of content types
- gzip/deflate Content-Encoding decompression

and delivers the body as one of:
- data: buffered and parsed by content type (JSON, text, form, binary)
- stream: passed through untouched
- file: written to a uniquely named file in the uploads directory

multipart/form-data bodies are decomposed into fields and parts, with file
parts persisted concurrently.

All configuration is done through YAML configuration files. Use --config to specify
a configuration file, or the gateway will look for configuration in standard locations.`,
		RunE: runGateway,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (YAML format)")
}

func initConfig() {
	config.InitConfig(cfgFile)
}

func runGateway(cmd *cobra.Command, args []string) error {
	// Display build information at startup
	logrus.WithFields(logrus.Fields{
		"version":   version,
		"commit":    commit,
		"buildTime": buildTime,
	}).Info("Payload Gateway build information")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := configureLogging(cfg); err != nil {
		return err
	}

	server, err := gateway.NewServer(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}

	// Cancel on SIGINT/SIGTERM to trigger graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Start(ctx)
	})

	if cfg.Monitoring.Enabled {
		monitoring.SetServerInfo(version, commit, buildTime)
		metricsServer := monitoring.NewServer(&monitoring.Config{
			BindAddress: cfg.Monitoring.BindAddress,
			MetricsPath: cfg.Monitoring.MetricsPath,
		})
		group.Go(func() error {
			return metricsServer.Start(ctx)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	logrus.Info("Server stopped")
	return nil
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
