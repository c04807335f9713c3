package main

import (
	"errors"
	"os"
	"strings"

	"github.com/MimeLyc/dualsub/internal/config"
	"github.com/MimeLyc/dualsub/pkg/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// envFile is loaded into the environment before the config is read.
	envFile string

	// dataDir overrides DATA_DIR.
	dataDir string

	// logLevel overrides LOG_LEVEL.
	logLevel string

	// logFile sends log lines to a file instead of stdout.
	logFile string

	// cfg is the loaded configuration, set before any subcommand runs.
	cfg *config.Config
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "dualsub",
	Short: "Dual-language caption engine",
	Long: `dualsub keeps a second caption line in sync with playback.

It resolves the active cue of each track, fills missing lines from a tiered
translation cache backed by SQLite, Redis and an LLM provider, and records
what was on screen for export.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&envFile, "env-file", ".env",
		"Environment file to load if present",
	)
	rootCmd.PersistentFlags().StringVar(
		&dataDir, "data-dir", "",
		"Directory for the database and settings (default: $DATA_DIR)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (default: $LOG_LEVEL)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logFile, "log-file", "",
		"Append log lines to this file",
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(keyCmd)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	opts := []config.Option{config.WithKeyringFallback(config.SystemUser())}
	if strings.TrimSpace(dataDir) != "" {
		opts = append(opts, config.WithDataDir(dataDir))
	}

	loaded, err := config.NewFromEnv(opts...)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if logFile == "" {
		log.InitLogger(log.ParseLevel(level))
		return nil
	}
	fl, err := log.NewFileLogger(logFile, log.ParseLevel(level))
	if err != nil {
		return err
	}
	// The file stays open for the life of the process.
	log.SetLogger(fl.Logger)
	return nil
}
