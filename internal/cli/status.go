package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/promptguard/internal/config"
	"github.com/gzhole/promptguard/internal/site"
	"github.com/gzhole/promptguard/internal/snooze"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show PromptGuard status: snooze, site profiles, audit log",
	Long: `Check whether warnings are on, which site profiles are loaded, and where
the config and audit files live.

  promptguard status`,
	RunE: statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  PromptGuard Status")
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println()

	// 1. Binary
	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Printf("  Binary:    %s (%s)\n", binPath, Version)

	// 2. Config directory
	fmt.Printf("  Config:    %s\n", cfg.ConfigDir)
	fmt.Printf("  Locale:    %s\n", cfg.Locale)
	fmt.Println()

	// 3. Warnings
	fmt.Println("─── Warnings ──────────────────────────────────────────")
	checkSnooze(cmd, cfg)
	fmt.Println()

	// 4. Site profiles
	fmt.Println("─── Site Profiles ─────────────────────────────────────")
	reg, err := site.Load(cfg.SitesDir)
	if err != nil {
		fmt.Printf("  ❌ %s: %v\n", cfg.SitesDir, err)
	} else {
		fmt.Printf("  ✅ %d profile(s) loaded\n", len(reg.Profiles()))
		checkConfigFile("Overrides", cfg.SitesDir)
	}
	fmt.Println()

	// 5. Audit log
	fmt.Println("─── Audit Log ─────────────────────────────────────────")
	checkAuditLog(cfg.LogPath)
	fmt.Println()

	return nil
}

func checkSnooze(cmd *cobra.Command, cfg *config.Config) {
	store, closeStore, err := openSnoozeStore(cfg)
	if err != nil {
		fmt.Printf("  ❌ Snooze store (%s): %v\n", cfg.Store, err)
		return
	}
	defer closeStore()

	rec, active, err := snooze.Lookup(cmd.Context(), store, time.Now())
	switch {
	case err != nil:
		fmt.Printf("  ⚠  Snooze store unreadable, warnings stay on: %v\n", err)
	case active:
		fmt.Printf("  🔕 Snoozed until %s (%s store)\n", rec.Until().Local().Format("2006-01-02 15:04:05"), cfg.Store)
	default:
		fmt.Printf("  ✅ Warnings on (%s store)\n", cfg.Store)
	}
}

func checkConfigFile(name, path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  ✅ %s: %s\n", name, path)
	} else {
		fmt.Printf("  ⬚  %s: none (%s)\n", name, path)
	}
}

func checkAuditLog(path string) {
	if path == "" {
		fmt.Println("  ⬚  No audit log path configured")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("  ⬚  %s (not yet created, will start on first event)\n", path)
		return
	}

	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		fmt.Printf("  ✅ %s (<1 KB)\n", path)
	} else {
		fmt.Printf("  ✅ %s (%d KB)\n", path, sizeKB)
	}
}
