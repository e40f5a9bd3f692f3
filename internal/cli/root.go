package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/promptguard/internal/config"
	"github.com/gzhole/promptguard/internal/logger"
	"github.com/gzhole/promptguard/internal/snooze"
)

var (
	configDir string
	logPath   string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "promptguard",
	Short: "PromptGuard - Sensitive prompt detector for AI chat UIs",
	Long: `PromptGuard watches what you send to AI chat services (ChatGPT, Claude,
Gemini) and stops messages that look like they contain personal or
confidential data (email addresses, phone numbers, card numbers, passport
and national ID numbers, cloud access keys) until you confirm them.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(logLevel))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Config directory (default: ~/.promptguard)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Path to audit log file (default: ~/.promptguard/audit.jsonl)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostic log level: debug, info, warn, error")
}

func Execute() error {
	return rootCmd.Execute()
}

func newLogger(name string) *slog.Logger {
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads the config and applies the persistent flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
		slog.SetDefault(newLogger(logLevel))
	}
	return cfg, nil
}

// openSnoozeStore opens the configured snooze store. close releases it.
func openSnoozeStore(cfg *config.Config) (store snooze.Store, close func() error, err error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case config.StoreMemory:
		return snooze.NewMemoryStore(), noop, nil
	case config.StoreSQLite:
		s, err := snooze.OpenSQLite(cfg.SnoozePath())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open snooze database: %w", err)
		}
		return s, s.Close, nil
	default:
		return snooze.NewFileStore(cfg.SnoozePath()), noop, nil
	}
}

// openAuditLog opens the audit log, or returns nil with a warning when it
// cannot be written. Auditing never stops a command.
func openAuditLog(cfg *config.Config, source string) *logger.AuditLogger {
	lg, err := logger.New(cfg.LogPath)
	if err != nil {
		slog.Warn("cli: audit log unavailable", "path", cfg.LogPath, "error", err)
		return nil
	}
	return lg.WithSource(source)
}
