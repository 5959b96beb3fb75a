package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dupsieve/internal/config"
	"dupsieve/internal/storage"
)

var (
	dbPath    string
	logLevel  string
	logFormat string

	// cfg holds defaults overridden by DUPSIEVE_* variables; command flags
	// write into it
	cfg = config.Load()
)

var rootCmd = &cobra.Command{
	Use:   "dupsieve",
	Short: "Find and manage near-duplicate images",
	Long: `dupsieve finds images that show the same picture even after resizing,
recompression, rotation or cropping.

Each image gets a perceptual fingerprint (average, difference, perceptual or
ring hash, optionally crop-resistant). Images whose fingerprints are at least
--threshold percent similar are grouped, and the best copy of each group
(resolution x DPI, then format, then size) is kept as the original.

Example usage:
  dupsieve scan ./photos                 # Scan a folder for duplicates
  dupsieve scan ./photos -t 90 -r        # Looser threshold, recursive
  dupsieve list                          # List duplicate groups
  dupsieve clean --dry-run               # Preview what would be moved
  dupsieve compare a.jpg b.jpg           # Compare two images`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Default database path
	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".dupsieve", "images.db")

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "Path to SQLite database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text, json")
}

func setupLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q", logFormat)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func openStore() (*storage.Storage, error) {
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}
