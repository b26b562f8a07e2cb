package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nelcapetown/audible-scraper/internal/config"
	"github.com/nelcapetown/audible-scraper/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "audible-scraper",
	Short:         "audible-scraper saves your Audible library as JSON, cover images and catalogs.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "Path to the JSON5 config file.")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error).")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and opens the process logger. The caller
// closes the logger.
func setup(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.Open(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	log.Info("logging set up", "file", cfg.LogFile, "level", cfg.LogLevel)
	if len(cfg.Sources) == 0 {
		log.Info("no config file found, using defaults", "path", configPath)
	} else {
		log.Info("configuration loaded", "sources", cfg.Sources)
	}

	return cfg, log, nil
}

// applyFlags copies explicitly set command flags over the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Lookup("headless") != nil && flags.Changed("headless") {
		v, err := flags.GetBool("headless")
		if err != nil {
			return err
		}
		cfg.Headless = v
	}
	if flags.Lookup("max-pages") != nil && flags.Changed("max-pages") {
		v, err := flags.GetInt("max-pages")
		if err != nil {
			return err
		}
		cfg.MaxPages = v
	}
	if flags.Lookup("log-level") != nil && flags.Changed("log-level") {
		v, err := flags.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = v
	}
	return nil
}
