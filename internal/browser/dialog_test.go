package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/guard"
	"github.com/gzhole/promptguard/internal/prompt"
)

type fakePage struct {
	mu    sync.Mutex
	calls [][]any
	ids   chan string
	err   error
}

func newFakePage() *fakePage { return &fakePage{ids: make(chan string, 4)} }

func (f *fakePage) Eval(js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]any{js}, args...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(args) == 2 {
		if id, ok := args[0].(string); ok {
			f.ids <- id
		}
	}
	return &proto.RuntimeRemoteObject{}, nil
}

func (f *fakePage) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var emailDetection = []classifier.Detection{{
	Category: classifier.CategoryEmail,
	Matches:  []string{"taro.yamada@corp-mail.jp"},
}}

func TestDialogPrompt_Decisions(t *testing.T) {
	tests := []struct {
		answer string
		want   guard.Decision
	}{
		{"continue", guard.DecisionContinue},
		{"snooze", guard.DecisionSnooze},
		{"cancel", guard.DecisionCancel},
		{"something-else", guard.DecisionCancel},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			page := newFakePage()
			d := NewDialogPrompt(page, "en", 8*time.Hour, false)

			go func() {
				id := <-page.ids
				if err := d.resolve(`{"id":"` + id + `","decision":"` + tt.answer + `"}`); err != nil {
					t.Errorf("resolve: %v", err)
				}
			}()

			got, err := d.Show(context.Background(), emailDetection)
			if err != nil {
				t.Fatalf("Show: %v", err)
			}
			if got != tt.want {
				t.Errorf("decision = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDialogPrompt_ContextEnds(t *testing.T) {
	page := newFakePage()
	d := NewDialogPrompt(page, "en", 8*time.Hour, false)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-page.ids
		cancel()
	}()

	got, err := d.Show(ctx, emailDetection)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got != guard.DecisionCancel {
		t.Errorf("decision = %v, want cancel", got)
	}
	// Shown, then removed.
	if n := page.callCount(); n != 2 {
		t.Errorf("eval calls = %d, want 2", n)
	}
}

func TestDialogPrompt_EvalFailure(t *testing.T) {
	page := newFakePage()
	page.err = errors.New("target closed")
	d := NewDialogPrompt(page, "en", 8*time.Hour, false)

	if _, err := d.Show(context.Background(), emailDetection); err == nil {
		t.Fatal("expected an error when the page cannot show the dialog")
	}
}

func TestDialogPrompt_ResolveUnknown(t *testing.T) {
	d := NewDialogPrompt(newFakePage(), "en", time.Hour, false)
	if err := d.resolve(`{"id":"nope","decision":"continue"}`); err == nil {
		t.Error("expected error for an unknown dialog id")
	}
	if err := d.resolve(`not json`); err == nil {
		t.Error("expected error for a malformed payload")
	}
}

func TestRenderDialog_MasksAndEscapes(t *testing.T) {
	detections := []classifier.Detection{
		{Category: classifier.CategoryEmail, Matches: []string{"taro.yamada@corp-mail.jp"}},
		{Category: classifier.CategoryNationalID, Matches: []string{"<script>alert(1)</script>"}},
	}
	html := renderDialog(prompt.For("en", 8*time.Hour), "en", detections, false)

	if strings.Contains(html, "taro.yamada@corp-mail.jp") {
		t.Error("dialog shows the full match while masking is on")
	}
	if !strings.Contains(html, "ta*") {
		t.Errorf("dialog is missing the masked preview: %s", html)
	}
	if strings.Contains(html, "<script") || strings.Contains(html, "<s*") {
		t.Errorf("dialog carries unescaped markup: %s", html)
	}
	if !strings.Contains(html, "&lt;s") {
		t.Errorf("masked markup was dropped instead of escaped: %s", html)
	}
	for _, decision := range []string{"continue", "snooze", "cancel"} {
		if !strings.Contains(html, `data-decision="`+decision+`"`) {
			t.Errorf("dialog lost the %s button: %s", decision, html)
		}
	}
	if !strings.Contains(html, "8 hours") {
		t.Errorf("snooze option does not name the duration: %s", html)
	}
}

func TestRenderDialog_ShowMatches(t *testing.T) {
	html := renderDialog(prompt.For("ja", time.Hour), "ja", emailDetection, true)
	if !strings.Contains(html, "taro.yamada@corp-mail.jp") {
		t.Errorf("full match missing with ShowMatches: %s", html)
	}
	if !strings.Contains(html, "キャンセル") {
		t.Errorf("Japanese copy missing: %s", html)
	}
}
