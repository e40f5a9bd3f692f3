package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/guard"
	"github.com/gzhole/promptguard/internal/prompt"
	"github.com/gzhole/promptguard/internal/snooze"
)

// exitBlocked is the exit code for a draft that must not be sent.
const exitBlocked = 2

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a draft from stdin before sending it",
	Long: `Reads a draft message from stdin and decides whether it may be sent.
Clean drafts, snoozed warnings and confirmed drafts exit 0. When the draft
contains sensitive data, the confirmation prompt is shown on the terminal;
cancelling (or having no terminal to ask on) exits 2.

  pbpaste | promptguard check && pbpaste | llm`,
	RunE: checkCommand,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkCommand(cmd *cobra.Command, args []string) error {
	out, err := runCheck(cmd)
	if err != nil {
		return err
	}
	if out != guard.OutcomeAllowed {
		os.Exit(exitBlocked)
	}
	return nil
}

func runCheck(cmd *cobra.Command) (guard.Outcome, error) {
	cfg, err := loadConfig()
	if err != nil {
		return 0, err
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return 0, fmt.Errorf("failed to read stdin: %w", err)
	}

	store, closeStore, err := openSnoozeStore(cfg)
	if err != nil {
		return 0, err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stdin carries the draft, so answers come from the terminal itself.
	tty, ttyErr := os.Open("/dev/tty")
	if ttyErr == nil {
		defer tty.Close()
	}
	p := &prompt.Terminal{
		Locale:      cfg.Locale,
		SnoozeFor:   cfg.SnoozeFor,
		ShowMatches: cfg.ShowMatches,
		Interactive: func() bool { return ttyErr == nil },
	}
	if ttyErr == nil {
		p.In = tty
	}

	checker := &draftChecker{
		classifier: classifier.New(classifier.WithLocale(cfg.Locale)),
		store:      store,
		prompt:     p,
		snoozeFor:  cfg.SnoozeFor,
		now:        time.Now,
	}
	if lg := openAuditLog(cfg, "check"); lg != nil {
		defer lg.Close()
		checker.auditor = lg
	}

	return checker.check(ctx, string(data)), nil
}

// draftChecker runs one draft through the same steps as the page guard:
// empty and snoozed drafts pass, clean drafts pass, flagged drafts wait
// for the user.
type draftChecker struct {
	classifier *classifier.Classifier
	store      snooze.Store
	prompt     guard.Prompt
	snoozeFor  time.Duration
	auditor    guard.Auditor
	now        func() time.Time
}

func (c *draftChecker) check(ctx context.Context, text string) guard.Outcome {
	report := guard.Report{ID: uuid.NewString(), Site: "stdin", Signal: guard.SignalFormSubmit, At: c.now()}
	allow := func(reason guard.Reason) guard.Outcome {
		report.Outcome, report.Reason = guard.OutcomeAllowed, reason
		c.audit(report)
		return guard.OutcomeAllowed
	}

	if strings.TrimSpace(text) == "" {
		return allow(guard.ReasonEmpty)
	}
	snoozed, err := snooze.Active(ctx, c.store, c.now())
	if err != nil {
		slog.Warn("check: snooze read failed, treating as not snoozed", "error", err)
	}
	if snoozed {
		return allow(guard.ReasonSnoozed)
	}

	detections := c.classifier.Classify(text)
	if len(detections) == 0 {
		return allow(guard.ReasonClean)
	}

	report.Outcome, report.Reason = guard.OutcomeBlocked, guard.ReasonFlagged
	report.Categories = classifier.CategoriesOf(detections)
	report.Text = text
	c.audit(report)

	resolved := guard.Report{ID: report.ID, Site: report.Site, Signal: report.Signal}
	decision, err := c.prompt.Show(ctx, detections)
	if err != nil {
		if !errors.Is(err, prompt.ErrNonInteractive) {
			resolved.Error = err.Error()
		}
		decision = guard.DecisionCancel
	}
	resolved.Decision = decision.String()
	resolved.At = c.now()
	c.audit(resolved)

	switch decision {
	case guard.DecisionSnooze:
		if _, err := snooze.Snooze(ctx, c.store, c.now(), c.snoozeFor); err != nil {
			slog.Warn("check: snooze write failed", "error", err)
		}
		return guard.OutcomeAllowed
	case guard.DecisionContinue:
		return guard.OutcomeAllowed
	}
	return guard.OutcomeBlocked
}

func (c *draftChecker) audit(r guard.Report) {
	if c.auditor != nil {
		c.auditor.Record(r)
	}
}
