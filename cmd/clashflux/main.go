package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clashflux-go/internal/config"
	"clashflux-go/internal/httpapi"
	"clashflux-go/internal/logs"
	"clashflux-go/internal/runtime"
)

var (
	configFile string
	dataDir    string
	kernelBin  string
	listen     string
	logLevel   string
	enableTray bool
	logToFile  bool
	logDir     string

	version = "v0.1.0" // Injected by -ldflags during build
)

// TrayInterface defines the interface for system tray functionality.
type TrayInterface interface {
	Run(ctx context.Context) error
}

// createTray is implemented in build-tagged files

func main() {
	rootCmd := &cobra.Command{
		Use:     "clashflux",
		Short:   "ClashFlux - desktop lifecycle manager for the mihomo proxy kernel",
		Version: version,
		RunE:    run,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory path (default: ~/.clashflux)")
	rootCmd.PersistentFlags().StringVar(&kernelBin, "kernel", "", "Proxy kernel binary (default: mihomo)")
	rootCmd.PersistentFlags().StringVarP(&listen, "listen", "l", "", "UI bridge listen address")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&enableTray, "tray", true, "Enable system tray (use --tray=false to disable)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", true, "Enable logging to file in standard OS location")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path (overrides standard OS location)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logs.SetupLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting clashflux",
		zap.String("version", version),
		zap.String("data_dir", cfg.DataDir),
		zap.String("kernel", cfg.KernelBin),
		zap.Bool("tray_enabled", cfg.EnableTray))

	rt, err := runtime.New(cfg, logger.Sugar())
	if err != nil {
		return fmt.Errorf("failed to assemble runtime: %w", err)
	}
	if err := rt.Start(); err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownFunc := func() {
		logger.Info("Shutdown requested")
		cancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		shutdownFunc()
	}()

	var wg sync.WaitGroup
	api := httpapi.NewServer(rt, logger.Sugar())
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := api.Serve(ctx, cfg.Listen); err != nil && ctx.Err() == nil {
			logger.Error("UI bridge API failed", zap.Error(err))
			shutdownFunc()
		}
	}()

	if cfg.EnableTray {
		// The tray event loop must own the main goroutine on macOS.
		trayApp := createTray(rt, cfg, logger.Sugar(), shutdownFunc)
		if err := trayApp.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Tray application error", zap.Error(err))
		}
	} else {
		<-ctx.Done()
	}

	wg.Wait()
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if kernelBin != "" {
		cfg.KernelBin = kernelBin
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if cmd.Flags().Changed("tray") {
		cfg.EnableTray = enableTray
	}
	if cmd.Flags().Changed("log-level") || cfg.Logging.Level == "" {
		cfg.Logging.Level = logLevel
	}
	cfg.Logging.EnableFile = logToFile
	if logDir != "" {
		cfg.Logging.LogDir = logDir
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
