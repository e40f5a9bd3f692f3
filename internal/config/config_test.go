package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gzhole/promptguard/internal/snooze"
)

func TestLoad_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pg")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("config dir not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("config dir permissions = %04o, want 0700", perm)
	}

	if cfg.SnoozeFor != snooze.DefaultDuration {
		t.Errorf("SnoozeFor = %s, want %s", cfg.SnoozeFor, snooze.DefaultDuration)
	}
	if cfg.Store != StoreFile {
		t.Errorf("Store = %q, want %q", cfg.Store, StoreFile)
	}
	if cfg.LogPath != filepath.Join(dir, DefaultLogFile) {
		t.Errorf("LogPath = %q", cfg.LogPath)
	}
	if cfg.SnoozePath() != filepath.Join(dir, DefaultSnoozeFile) {
		t.Errorf("SnoozePath = %q", cfg.SnoozePath())
	}
	if cfg.Browser.SettleWindow != 2*time.Second {
		t.Errorf("SettleWindow = %s", cfg.Browser.SettleWindow)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `locale: ja
snooze_for: 2h
store: sqlite
browser:
  headful: true
  remote_url: ws://127.0.0.1:9222/devtools/browser/x
control:
  listen: ""
`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Locale != "ja" {
		t.Errorf("Locale = %q, want ja", cfg.Locale)
	}
	if cfg.SnoozeFor != 2*time.Hour {
		t.Errorf("SnoozeFor = %s, want 2h", cfg.SnoozeFor)
	}
	if cfg.SnoozePath() != filepath.Join(dir, DefaultSnoozeDB) {
		t.Errorf("SnoozePath = %q", cfg.SnoozePath())
	}
	if !cfg.Browser.Headful {
		t.Error("expected headful from config file")
	}
	if cfg.Control.Listen != "" {
		t.Errorf("Listen = %q, want disabled", cfg.Control.Listen)
	}
	// Unset keys keep their defaults.
	if cfg.Browser.SettleDelay != 100*time.Millisecond {
		t.Errorf("SettleDelay = %s", cfg.Browser.SettleDelay)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("locale: ja\n"), 0600); err != nil {
		t.Fatal(err)
	}
	dotenv := "PROMPTGUARD_SNOOZE_FOR=30m\nPROMPTGUARD_STORE=memory\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultEnvFile), []byte(dotenv), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROMPTGUARD_LOCALE", "en")
	t.Setenv("PROMPTGUARD_STORE", "sqlite")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Locale != "en" {
		t.Errorf("Locale = %q, env should win over config.yaml", cfg.Locale)
	}
	if cfg.SnoozeFor != 30*time.Minute {
		t.Errorf("SnoozeFor = %s, want 30m from .env", cfg.SnoozeFor)
	}
	if cfg.Store != StoreSQLite {
		t.Errorf("Store = %q, process env should win over .env", cfg.Store)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{name: "store", yaml: "store: redis\n", want: "unknown store"},
		{name: "locale", yaml: "locale: fr\n", want: "unsupported locale"},
		{name: "snooze", yaml: "snooze_for: 0s\n", want: "snooze_for"},
		{name: "headful env", env: map[string]string{"PROMPTGUARD_HEADFUL": "maybe"}, want: "HEADFUL"},
		{name: "duration env", env: map[string]string{"PROMPTGUARD_SNOOZE_FOR": "soon"}, want: "SNOOZE_FOR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.yaml != "" {
				if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(tt.yaml), 0600); err != nil {
					t.Fatal(err)
				}
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSnoozePath_Explicit(t *testing.T) {
	cfg := Default("/tmp/pg")
	cfg.StorePath = "/var/lib/pg/snooze.db"
	if got := cfg.SnoozePath(); got != "/var/lib/pg/snooze.db" {
		t.Errorf("SnoozePath = %q", got)
	}
}
