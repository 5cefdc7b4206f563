// Package main provides the semharvest binary entry point. Semharvest
// harmonizes heterogeneous environmental-data parameter names into
// canonical variables carrying ontology URIs and standardized units, and
// curates the mapping registry over time.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/semharvest/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semharvest"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath  string
		registryDir string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Semantic parameter harmonization registry",
		Long: `Semharvest harmonizes native parameter names from independent
environmental data sources into a shared set of canonical variables.

It provides:
- Confidence-scored matching of native parameters against the canonical seed
- A four-layer persistent registry (seed, overrides, delta, harvest)
- Parallel harvest refresh cycles with per-source failure isolation
- A curation surface for reviewing and promoting suggested mappings`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&registryDir, "registry", "", "Registry directory (overrides config)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	loadApp := func() (*App, error) {
		logger := newLogger(logLevel)
		cfg, err := loadConfig(configPath, logger)
		if err != nil {
			return nil, err
		}
		if registryDir != "" {
			cfg.Registry.Dir = registryDir
		}
		return NewApp(cfg, logger)
	}

	cmd.AddCommand(refreshCmd(loadApp))
	cmd.AddCommand(watchCmd(loadApp))
	cmd.AddCommand(promoteCmd(loadApp))
	cmd.AddCommand(unknownsCmd(loadApp))
	cmd.AddCommand(resolveCmd(loadApp))
	cmd.AddCommand(statusCmd(loadApp))

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}
