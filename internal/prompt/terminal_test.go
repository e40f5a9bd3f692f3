package prompt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/guard"
)

var phone = []classifier.Detection{{
	Category: classifier.CategoryPhoneNumber,
	Matches:  []string{"090-1234-5678"},
	Label:    "Phone number",
}}

func newTerminal(in string, out *bytes.Buffer) *Terminal {
	return &Terminal{
		In:          strings.NewReader(in),
		Out:         out,
		Interactive: func() bool { return true },
	}
}

func TestShow_Choices(t *testing.T) {
	tests := []struct {
		input string
		want  guard.Decision
	}{
		{"c\n", guard.DecisionContinue},
		{"YES\n", guard.DecisionContinue},
		{"s\n", guard.DecisionSnooze},
		{"x\n", guard.DecisionCancel},
		{"what\nno\n", guard.DecisionCancel},
		{"\n\nsnooze", guard.DecisionSnooze},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := newTerminal(tt.input, &out).Show(context.Background(), phone)
		if err != nil {
			t.Errorf("Show(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Show(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestShow_MasksMatchesByDefault(t *testing.T) {
	var out bytes.Buffer
	if _, err := newTerminal("x\n", &out).Show(context.Background(), phone); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	if strings.Contains(s, "090-1234-5678") {
		t.Error("matched text should be masked")
	}
	if !strings.Contains(s, "Phone number") || !strings.Contains(s, "09*********78") {
		t.Errorf("output missing label or preview:\n%s", s)
	}
}

func TestShow_Japanese(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal("c\n", &out)
	term.Locale = classifier.LocaleJapanese
	term.ShowMatches = true
	if _, err := term.Show(context.Background(), phone); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	if !strings.Contains(s, "8時間表示を止める") || !strings.Contains(s, "090-1234-5678") {
		t.Errorf("japanese output unexpected:\n%s", s)
	}
}

func TestShow_EOFIsError(t *testing.T) {
	var out bytes.Buffer
	d, err := newTerminal("maybe\n", &out).Show(context.Background(), phone)
	if !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want EOF", err)
	}
	if d != guard.DecisionCancel {
		t.Errorf("decision on error = %v, want cancel", d)
	}
}

func TestShow_NonInteractive(t *testing.T) {
	term := &Terminal{Out: io.Discard, Interactive: func() bool { return false }}
	if _, err := term.Show(context.Background(), phone); !errors.Is(err, ErrNonInteractive) {
		t.Errorf("error = %v, want ErrNonInteractive", err)
	}
}

func TestShow_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	term := &Terminal{In: pr, Out: io.Discard, Interactive: func() bool { return true }}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := term.Show(ctx, phone); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestFor_SnoozeHours(t *testing.T) {
	if got := For("en", 2*time.Hour).Snooze; got != "Stop warning me for 2 hours" {
		t.Errorf("Snooze copy = %q", got)
	}
	if got := For("fr", time.Hour).Cancel; got != "Cancel" {
		t.Errorf("unknown locale should fall back to English, got %q", got)
	}
}
