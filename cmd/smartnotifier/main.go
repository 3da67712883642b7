// SmartNotifier reads selected notifications aloud.
//
// Usage:
//
//	smartnotifier serve [--feed FILE|-]
//	smartnotifier rules list|add|edit|enable|disable|delete|duplicate
//	smartnotifier log list|add-rule
//	smartnotifier prefs show|sort|title
//	smartnotifier gate show|set
//	smartnotifier check
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/term"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hammamikhairi/smartnotifier/internal/config"
	"github.com/hammamikhairi/smartnotifier/internal/display"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
	"github.com/hammamikhairi/smartnotifier/internal/storage"
)

var (
	// Global flags
	configPath string
	verbose    bool
	quiet      bool
	logFile    string
	dbPath     string

	// Set up by the root command before any subcommand runs.
	cfg     *config.Config
	log     *logger.Logger
	out     *display.Printer
	logSink io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "smartnotifier",
	Short: "Read selected notifications aloud",
	Long: `SmartNotifier listens to notifications, matches them against rules
(package, channel and a title substring) and speaks the rule's voice message.

Notifications arrive over the local HTTP API or a JSON-lines feed. Rules,
the notification log and preferences live in a SQLite database shared by
the daemon and the CLI.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logSink != nil {
			logSink.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "disable all logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", `log file (default from config; "stderr" logs to the console)`)
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database (default from config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .env, the configuration and the logger.
func setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	var err error
	if cfg, err = config.Load(configPath); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}

	level := logger.LevelNormal
	if verbose {
		level = logger.LevelVerbose
	}
	if quiet {
		level = logger.LevelOff
	}
	log = newLogger(level, cfg.LogFile)
	out = display.New(cmd.OutOrStdout())

	for _, w := range cfg.Warnings() {
		log.Warn("config: %s", w)
	}
	return nil
}

// newLogger logs to a file by default so CLI output stays clean.
func newLogger(level logger.Level, path string) *logger.Logger {
	if path == "" || path == "stderr" {
		return logger.New(level, os.Stderr, logger.WithConsole(term.IsTerminal(os.Stderr.Fd())))
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", path, err)
		return logger.New(level, os.Stderr, logger.WithConsole(term.IsTerminal(os.Stderr.Fd())))
	}
	logSink = f
	return logger.New(level, f)
}

// openStore opens the database and runs first-launch setup.
func openStore(cmd *cobra.Command) (*storage.SQLiteStore, error) {
	store, err := storage.OpenSQLite(cfg.DBPath, log, storage.WithLogLimit(cfg.LogLimit))
	if err != nil {
		return nil, err
	}
	if err := storage.Seed(cmd.Context(), store, cfg.SelfPackage, log); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
