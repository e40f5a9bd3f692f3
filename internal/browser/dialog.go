package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/guard"
	"github.com/gzhole/promptguard/internal/prompt"
	"github.com/gzhole/promptguard/internal/redact"
)

//go:embed dialog.js
var dialogJS string

const decisionBinding = "__promptguard_decision"

// dialogPolicy is the dialog's own markup and nothing else.
var dialogPolicy = newDialogPolicy()

func newDialogPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("div", "h2", "p", "ul", "li", "strong", "code", "button")
	p.AllowDataAttributes()
	p.AllowAttrs("type").OnElements("button")
	return p
}

// evaluator runs JavaScript in a page.
type evaluator interface {
	Eval(js string, args ...any) (*proto.RuntimeRemoteObject, error)
}

// DialogPrompt asks in the page itself, with an overlay the shim cannot
// intercept. Answers arrive through the decision binding.
type DialogPrompt struct {
	page        evaluator
	locale      string
	snoozeFor   time.Duration
	showMatches bool

	mu      sync.Mutex
	waiting map[string]chan guard.Decision
}

var _ guard.Prompt = (*DialogPrompt)(nil)

func NewDialogPrompt(page evaluator, locale string, snoozeFor time.Duration, showMatches bool) *DialogPrompt {
	return &DialogPrompt{
		page:        page,
		locale:      locale,
		snoozeFor:   snoozeFor,
		showMatches: showMatches,
		waiting:     make(map[string]chan guard.Decision),
	}
}

func (d *DialogPrompt) Show(ctx context.Context, detections []classifier.Detection) (guard.Decision, error) {
	id := uuid.NewString()
	ch := make(chan guard.Decision, 1)

	d.mu.Lock()
	d.waiting[id] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.waiting, id)
		d.mu.Unlock()
	}()

	body := renderDialog(prompt.For(d.locale, d.snoozeFor), d.locale, detections, d.showMatches)
	if _, err := d.page.Eval(dialogJS, id, body); err != nil {
		return guard.DecisionCancel, fmt.Errorf("browser: show dialog: %w", err)
	}

	select {
	case decision := <-ch:
		return decision, nil
	case <-ctx.Done():
		_, _ = d.page.Eval(`() => { const n = document.getElementById("promptguard-dialog"); if (n) n.remove() }`)
		return guard.DecisionCancel, ctx.Err()
	}
}

// resolve delivers a decision payload from the page. Unknown ids are
// dropped.
func (d *DialogPrompt) resolve(payload string) error {
	var msg struct {
		ID       string `json:"id"`
		Decision string `json:"decision"`
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return fmt.Errorf("browser: decision payload: %w", err)
	}

	decision := guard.DecisionCancel
	switch msg.Decision {
	case "continue":
		decision = guard.DecisionContinue
	case "snooze":
		decision = guard.DecisionSnooze
	}

	d.mu.Lock()
	ch, ok := d.waiting[msg.ID]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("browser: no dialog %q", msg.ID)
	}
	select {
	case ch <- decision:
	default:
	}
	return nil
}

func renderDialog(m prompt.Messages, locale string, detections []classifier.Detection, showMatches bool) string {
	esc := html.EscapeString

	var b strings.Builder
	b.WriteString(`<div>`)
	fmt.Fprintf(&b, `<h2>%s</h2><p>%s</p>`, esc(m.Title), esc(m.Lead))

	fmt.Fprintf(&b, `<p><strong>%s</strong></p><ul>`, esc(m.Found))
	for _, det := range detections {
		fmt.Fprintf(&b, `<li>%s</li>`, esc(det.Category.Label(locale)))
	}
	b.WriteString(`</ul>`)

	if !showMatches {
		detections = redact.Matches(detections)
	}
	fmt.Fprintf(&b, `<p><strong>%s</strong></p><ul>`, esc(m.Matches))
	for _, det := range detections {
		for _, match := range det.Matches {
			fmt.Fprintf(&b, `<li><code>%s</code></li>`, esc(match))
		}
	}
	b.WriteString(`</ul>`)

	fmt.Fprintf(&b, `<p>%s</p><div>`, esc(m.Question))
	fmt.Fprintf(&b, `<button type="button" data-decision="continue">%s</button>`, esc(m.Continue))
	fmt.Fprintf(&b, `<button type="button" data-decision="snooze">%s</button>`, esc(m.Snooze))
	fmt.Fprintf(&b, `<button type="button" data-decision="cancel">%s</button>`, esc(m.Cancel))
	b.WriteString(`</div></div>`)

	return dialogPolicy.Sanitize(b.String())
}
