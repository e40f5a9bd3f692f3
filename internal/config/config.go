package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/snooze"
)

const (
	DefaultConfigDir  = ".promptguard"
	DefaultConfigFile = "config.yaml"
	DefaultLogFile    = "audit.jsonl"
	DefaultSitesDir   = "sites.d"
	DefaultSnoozeFile = "snooze.yaml"
	DefaultSnoozeDB   = "snooze.db"
	DefaultEnvFile    = ".env"

	envPrefix = "PROMPTGUARD_"
)

// Store kinds for the snooze record.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	ConfigDir string `yaml:"-"`

	Locale      string        `yaml:"locale"`
	SnoozeFor   time.Duration `yaml:"snooze_for"`
	Store       string        `yaml:"store"`
	StorePath   string        `yaml:"store_path"`
	LogPath     string        `yaml:"log_path"`
	LogLevel    string        `yaml:"log_level"`
	SitesDir    string        `yaml:"sites_dir"`
	ShowMatches bool          `yaml:"show_matches"`
	Browser     BrowserConfig `yaml:"browser"`
	Control     ControlConfig `yaml:"control"`
}

// BrowserConfig controls the watch mode browser host.
type BrowserConfig struct {
	// RemoteURL attaches to an already running Chrome DevTools endpoint
	// instead of launching one.
	RemoteURL string `yaml:"remote_url"`
	Headful   bool   `yaml:"headful"`
	Stealth   bool   `yaml:"stealth"`
	// SettleWindow is how long DOM mutations must be quiet before the
	// guarded elements are re-checked.
	SettleWindow time.Duration `yaml:"settle_window"`
	// SettleDelay is the pause between a decision and its replay.
	SettleDelay  time.Duration `yaml:"settle_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ControlConfig is the local control API.
type ControlConfig struct {
	// Listen is the address of the control API. Empty disables it.
	Listen string `yaml:"listen"`
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		ConfigDir:   dir,
		Locale:      classifier.LocaleEnglish,
		SnoozeFor:   snooze.DefaultDuration,
		Store:       StoreFile,
		LogPath:     filepath.Join(dir, DefaultLogFile),
		LogLevel:    "info",
		SitesDir:    filepath.Join(dir, DefaultSitesDir),
		ShowMatches: true,
		Browser: BrowserConfig{
			Stealth:      true,
			SettleWindow: 2 * time.Second,
			SettleDelay:  100 * time.Millisecond,
			PollInterval: 5 * time.Second,
		},
		Control: ControlConfig{Listen: "127.0.0.1:7879"},
	}
}

// Load builds the configuration: defaults, then config.yaml in the config
// dir, then .env files (config dir, then working dir), then the process
// environment. An empty dir means ~/.promptguard.
func Load(dir string) (*Config, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(homeDir, DefaultConfigDir)
	}

	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	cfg := Default(dir)
	if err := cfg.readFile(filepath.Join(dir, DefaultConfigFile)); err != nil {
		return nil, err
	}

	env, err := readEnv(filepath.Join(dir, DefaultEnvFile), DefaultEnvFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// readEnv merges the given .env files, later files winning, then lays the
// process environment over them.
func readEnv(files ...string) (map[string]string, error) {
	env := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		for k, v := range vals {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, envPrefix) {
			env[k] = v
		}
	}
	return env, nil
}

func (c *Config) applyEnv(env map[string]string) error {
	get := func(name string) (string, bool) {
		v, ok := env[envPrefix+name]
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get("LOCALE"); ok {
		c.Locale = v
	}
	if v, ok := get("STORE"); ok {
		c.Store = v
	}
	if v, ok := get("STORE_PATH"); ok {
		c.StorePath = v
	}
	if v, ok := get("LOG"); ok {
		c.LogPath = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("SITES_DIR"); ok {
		c.SitesDir = v
	}
	if v, ok := get("REMOTE_URL"); ok {
		c.Browser.RemoteURL = v
	}
	if v, ok := get("LISTEN"); ok {
		c.Control.Listen = v
	}
	if v, ok := get("HEADFUL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sHEADFUL: %w", envPrefix, err)
		}
		c.Browser.Headful = b
	}
	if v, ok := get("SNOOZE_FOR"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSNOOZE_FOR: %w", envPrefix, err)
		}
		c.SnoozeFor = d
	}
	return nil
}

// Validate rejects values the rest of the program cannot use.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want file, sqlite or memory)", c.Store)
	}
	switch c.Locale {
	case classifier.LocaleEnglish, classifier.LocaleJapanese:
	default:
		return fmt.Errorf("unsupported locale %q", c.Locale)
	}
	if c.SnoozeFor <= 0 {
		return fmt.Errorf("snooze_for must be positive, got %s", c.SnoozeFor)
	}
	return nil
}

// SnoozePath is where the snooze record lives for the configured store.
func (c *Config) SnoozePath() string {
	if c.StorePath != "" {
		return c.StorePath
	}
	if c.Store == StoreSQLite {
		return filepath.Join(c.ConfigDir, DefaultSnoozeDB)
	}
	return filepath.Join(c.ConfigDir, DefaultSnoozeFile)
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
