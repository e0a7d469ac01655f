package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hluisi/pausemon/config"
)

// Version is set at build time via ldflags.
var Version = "0.3.0"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "pausemon",
	Short: "Background monitor that catches and explains system pauses",
	Long: `pausemon samples per-process pressure once a second, scores the worst
offenders, and watches its own loop cadence: when the sampling loop itself
gets starved, the whole system just froze, and the frozen history plus a
forensic capture explain why.

Run "pausemon daemon" in the background, then "pausemon events" after a
stall to see what happened.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"config file (default ~/.config/pausemon/config.yml)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads and validates configuration; validation failures are
// fatal before any component starts.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
