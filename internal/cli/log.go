package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/promptguard/internal/logger"
)

var (
	logFilterOutcome  string
	logFilterSite     string
	logFilterDecision string
	logFilterBlocked  bool
	logLast           int
	logSummary        bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the PromptGuard audit log with filtering and summary options.
Message text in the log is already redacted.

Examples:
  promptguard log                        # Show all entries
  promptguard log --last 20              # Show last 20 entries
  promptguard log --outcome blocked      # Show only blocked submissions
  promptguard log --site claude          # Show one site
  promptguard log --decision snooze      # Show snooze decisions
  promptguard log --summary              # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterOutcome, "outcome", "", "Filter by outcome (allowed, blocked, suppressed)")
	logCmd.Flags().StringVar(&logFilterSite, "site", "", "Filter by site id")
	logCmd.Flags().StringVar(&logFilterDecision, "decision", "", "Filter by user decision (continue, snooze, cancel)")
	logCmd.Flags().BoolVar(&logFilterBlocked, "blocked", false, "Show only blocked submissions and their decisions")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	events, err := logger.ReadEvents(cfg.LogPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	filtered := filterEvents(events, logFilter{
		outcome:  logFilterOutcome,
		site:     logFilterSite,
		decision: logFilterDecision,
		blocked:  logFilterBlocked,
	})

	// Apply --last
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(out, events)
		return nil
	}

	printEvents(out, filtered)
	return nil
}

type logFilter struct {
	outcome  string
	site     string
	decision string
	blocked  bool
}

func filterEvents(events []logger.ArbitrationEvent, f logFilter) []logger.ArbitrationEvent {
	if f.outcome == "" && f.site == "" && f.decision == "" && !f.blocked {
		return events
	}

	blockedIDs := map[string]bool{}
	if f.blocked {
		for _, e := range events {
			if e.Outcome == "blocked" && e.ID != "" {
				blockedIDs[e.ID] = true
			}
		}
	}

	var filtered []logger.ArbitrationEvent
	for _, e := range events {
		if f.outcome != "" && !strings.EqualFold(e.Outcome, f.outcome) {
			continue
		}
		if f.site != "" && !strings.EqualFold(e.Site, f.site) {
			continue
		}
		if f.decision != "" && !strings.EqualFold(e.Decision, f.decision) {
			continue
		}
		if f.blocked && e.Outcome != "blocked" && !blockedIDs[e.ID] {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEvents(out io.Writer, events []logger.ArbitrationEvent) {
	for _, e := range events {
		ts := formatTimestamp(e.Timestamp)
		icon := outcomeIcon(e)

		what := e.Outcome
		if e.Reason != "" {
			what += " (" + e.Reason + ")"
		}
		if e.Decision != "" {
			what = "decision: " + e.Decision
		}
		fmt.Fprintf(out, "%s %s [%s] %s %s\n", icon, ts, siteOrDash(e.Site), e.Signal, what)

		if len(e.Categories) > 0 {
			fmt.Fprintf(out, "     Categories: %s\n", strings.Join(e.Categories, ", "))
		}
		if e.Text != "" {
			fmt.Fprintf(out, "     Text: %s\n", e.Text)
		}
		if e.Error != "" {
			fmt.Fprintf(out, "     Error: %s\n", e.Error)
		}
		if e.ID != "" {
			fmt.Fprintf(out, "     ID: %s\n", e.ID)
		}
		fmt.Fprintln(out)
	}
}

func printSummary(out io.Writer, all []logger.ArbitrationEvent) {
	outcomes := map[string]int{}
	decisions := map[string]int{}
	categories := map[string]int{}
	errorCount := 0

	for _, e := range all {
		if e.Decision != "" {
			decisions[e.Decision]++
		} else {
			outcomes[e.Outcome]++
		}
		for _, c := range e.Categories {
			if e.Outcome == "blocked" {
				categories[c]++
			}
		}
		if e.Error != "" {
			errorCount++
		}
	}

	fmt.Fprintln(out, "═══════════════════════════════════════════")
	fmt.Fprintln(out, "  PromptGuard Audit Summary")
	fmt.Fprintln(out, "═══════════════════════════════════════════")
	fmt.Fprintf(out, "  Total events:    %d\n", len(all))
	fmt.Fprintf(out, "  Allowed:         %d\n", outcomes["allowed"])
	fmt.Fprintf(out, "  Blocked:         %d\n", outcomes["blocked"])
	fmt.Fprintf(out, "  Suppressed:      %d\n", outcomes["suppressed"])
	fmt.Fprintf(out, "  Sent anyway:     %d\n", decisions["continue"])
	fmt.Fprintf(out, "  Snoozed:         %d\n", decisions["snooze"])
	fmt.Fprintf(out, "  Cancelled:       %d\n", decisions["cancel"])
	fmt.Fprintf(out, "  Errors:          %d\n", errorCount)
	fmt.Fprintln(out, "═══════════════════════════════════════════")

	if len(all) > 0 {
		fmt.Fprintf(out, "  First event:     %s\n", formatTimestamp(all[0].Timestamp))
		fmt.Fprintf(out, "  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))
	}

	if len(categories) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Blocked by category:")
		for _, c := range categoryOrder(categories) {
			fmt.Fprintf(out, "    %-18s %d\n", c, categories[c])
		}
	}

	fmt.Fprintln(out)
}

func outcomeIcon(e logger.ArbitrationEvent) string {
	switch {
	case e.Decision == "continue" || e.Decision == "snooze":
		return "\xe2\x9e\xa1\xef\xb8\x8f" // arrow
	case e.Decision == "cancel":
		return "\xe2\x9c\x8b" // raised hand
	}
	switch e.Outcome {
	case "blocked":
		return "\xf0\x9f\x9b\x91" // stop sign
	case "suppressed":
		return "\xe2\x8f\xb8" // pause
	case "allowed":
		return "\xe2\x9c\x85" // check mark
	default:
		return "\xe2\x9d\x93" // question mark
	}
}

func siteOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// categoryOrder sorts counted categories by count, then name.
func categoryOrder(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for c := range counts {
		names = append(names, c)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
