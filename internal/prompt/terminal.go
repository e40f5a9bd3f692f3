// Package prompt asks the user whether a flagged message may be sent.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/guard"
	"github.com/gzhole/promptguard/internal/redact"
	"github.com/gzhole/promptguard/internal/snooze"
)

// ErrNonInteractive is returned when there is no terminal to ask on.
var ErrNonInteractive = errors.New("prompt: stdin is not a terminal")

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Terminal asks on the controlling terminal.
type Terminal struct {
	// In and Out default to os.Stdin and os.Stderr.
	In  io.Reader
	Out io.Writer
	// Locale selects the copy ("en" or "ja").
	Locale    string
	SnoozeFor time.Duration
	// ShowMatches prints the matched text instead of a masked preview.
	ShowMatches bool
	// Interactive defaults to IsInteractive. When it reports false, Show
	// returns ErrNonInteractive without reading.
	Interactive func() bool

	once   sync.Once
	reader *bufio.Reader
}

var _ guard.Prompt = (*Terminal)(nil)

func (t *Terminal) init() {
	t.once.Do(func() {
		if t.In == nil {
			t.In = os.Stdin
		}
		if t.Out == nil {
			t.Out = os.Stderr
		}
		if t.Interactive == nil {
			t.Interactive = IsInteractive
		}
		if t.SnoozeFor <= 0 {
			t.SnoozeFor = snooze.DefaultDuration
		}
		t.reader = bufio.NewReader(t.In)
	})
}

// Show prints the detections and reads a choice until it gets a valid
// one, the input ends, or ctx is done.
func (t *Terminal) Show(ctx context.Context, detections []classifier.Detection) (guard.Decision, error) {
	t.init()
	if !t.Interactive() {
		return guard.DecisionCancel, ErrNonInteractive
	}

	m := For(t.Locale, t.SnoozeFor)
	out := t.Out

	labels := make([]string, len(detections))
	var matches []string
	shown := detections
	if !t.ShowMatches {
		shown = redact.Matches(detections)
	}
	for i, d := range shown {
		labels[i] = d.Label
		matches = append(matches, d.Matches...)
	}

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(out, "║  ⚠️  %-56s║\n", m.Title)
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, m.Lead)
	fmt.Fprintf(out, "%s: %s\n", m.Found, strings.Join(labels, ", "))
	if len(matches) > 0 {
		fmt.Fprintf(out, "%s:\n", m.Matches)
		for _, s := range matches {
			fmt.Fprintf(out, "  • %s\n", s)
		}
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, m.Question)
	fmt.Fprintf(out, "  [c] %s\n", m.Continue)
	fmt.Fprintf(out, "  [s] %s\n", m.Snooze)
	fmt.Fprintf(out, "  [x] %s\n", m.Cancel)
	fmt.Fprintln(out, "")

	for {
		fmt.Fprint(out, "Your choice [c/s/x]: ")
		line, err := t.readLine(ctx)
		if err != nil {
			return guard.DecisionCancel, err
		}
		if d, ok := parseChoice(line); ok {
			return d, nil
		}
		fmt.Fprintln(out, "Invalid input. Please enter 'c' to continue, 's' to snooze or 'x' to cancel.")
	}
}

func (t *Terminal) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := t.reader.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{line, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("prompt: read choice: %w", r.err)
		}
		return r.line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func parseChoice(s string) (guard.Decision, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "c", "continue", "y", "yes", "send":
		return guard.DecisionContinue, true
	case "s", "snooze", "stop":
		return guard.DecisionSnooze, true
	case "x", "cancel", "n", "no":
		return guard.DecisionCancel, true
	}
	return guard.DecisionCancel, false
}
