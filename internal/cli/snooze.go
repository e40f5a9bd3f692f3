package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/promptguard/internal/snooze"
)

var snoozeFor time.Duration

var snoozeCmd = &cobra.Command{
	Use:   "snooze",
	Short: "Stop warning for a while",
	Long: `Turn the sensitive-data warning off until the given duration has passed
(default: the configured snooze length, 8h out of the box). Running watch
sessions pick the change up on their next check.

  promptguard snooze
  promptguard snooze --for 30m`,
	RunE: snoozeCommand,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Turn warnings back on",
	RunE:  resumeCommand,
}

func init() {
	snoozeCmd.Flags().DurationVar(&snoozeFor, "for", 0, "How long to snooze (e.g. 8h, 30m)")
	rootCmd.AddCommand(snoozeCmd)
	rootCmd.AddCommand(resumeCmd)
}

func snoozeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openSnoozeStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	d := snoozeFor
	if d <= 0 {
		d = cfg.SnoozeFor
	}
	rec, err := snooze.Snooze(cmd.Context(), store, time.Now(), d)
	if err != nil {
		return fmt.Errorf("failed to snooze: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\xf0\x9f\x94\x95 Warnings snoozed until %s\n", rec.Until().Local().Format("2006-01-02 15:04:05"))
	return nil
}

func resumeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openSnoozeStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to resume: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\xf0\x9f\x94\x94 Warnings are on")
	return nil
}
