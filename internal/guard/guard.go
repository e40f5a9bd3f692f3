// Package guard implements the submission guard: the state machine that
// intercepts a chat page's submission signals, classifies the typed
// message, and holds sensitive messages behind a confirmation prompt.
//
// One Guard serves one page. Every entry point takes the guard's mutex
// to check and claim the in-progress flag, so at most one arbitration
// runs at a time and a signal arriving mid-arbitration is cancelled,
// never queued. The snooze read and the prompt run with the mutex
// released.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/dom"
	"github.com/gzhole/promptguard/internal/locator"
	"github.com/gzhole/promptguard/internal/snooze"
)

// ErrNoSendControl is returned by replay when neither the send control
// nor the input can carry the re-issued intent.
var ErrNoSendControl = errors.New("guard: no send control for replay")

// Config wires a Guard to its page and collaborators.
type Config struct {
	Document dom.Document
	Locator  *locator.Locator
	Prompt   Prompt

	// Classifier defaults to classifier.New().
	Classifier *classifier.Classifier
	// Snooze defaults to an in-memory store.
	Snooze snooze.Store
	// SnoozeFor is the snooze length. Default: snooze.DefaultDuration.
	SnoozeFor time.Duration
	// SettleDelay is waited before a replay so the page can settle.
	// Default: 100ms. Negative disables it.
	SettleDelay time.Duration
	// AbsentChecks is how many consecutive checks without an input
	// trigger a reinitialize. Default: 1.
	AbsentChecks int

	Binder    Binder
	Auditor   Auditor
	OnResolve func(Resolution)
	Now       func() time.Time
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.Classifier == nil {
		c.Classifier = classifier.New()
	}
	if c.Snooze == nil {
		c.Snooze = snooze.NewMemoryStore()
	}
	if c.SnoozeFor <= 0 {
		c.SnoozeFor = snooze.DefaultDuration
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 100 * time.Millisecond
	}
	if c.AbsentChecks <= 0 {
		c.AbsentChecks = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// arbitration is the mutable state, owned by Guard and guarded by mu.
type arbitration struct {
	phase      Phase
	inProgress bool
	replaying  bool
	lastText   string
	pending    *pending
	epoch      uint64
	// prompting stays set until Prompt.Show returns, even across a
	// reinitialize, so a second Show is never issued beside it.
	prompting  bool
	stopPrompt context.CancelFunc
}

// pending is a blocked submission waiting for the user.
type pending struct {
	id         string
	signal     Signal
	input      dom.Element
	send       dom.Element
	text       string
	detections []classifier.Detection
	epoch      uint64

	// ctx ends the prompt; a reinitialize cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// Guard arbitrates submissions for one page.
type Guard struct {
	cfg  Config
	log  *slog.Logger
	site string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	st     arbitration
	input  dom.Element
	absent int
	// absentHandled is set once the current absence has reinitialized.
	absentHandled bool

	reinit sync.Mutex
}

// New builds a guard. Document, Locator and Prompt are required.
func New(cfg Config) (*Guard, error) {
	if cfg.Document == nil || cfg.Locator == nil || cfg.Prompt == nil {
		return nil, fmt.Errorf("guard: Document, Locator and Prompt are required")
	}
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Guard{
		cfg:    cfg,
		log:    cfg.Logger.With("site", cfg.Locator.Profile().ID),
		site:   cfg.Locator.Profile().ID,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start runs the initial element discovery and binds the host. A page
// without an input yet is not an error; the watcher's checks pick it up.
func (g *Guard) Start(ctx context.Context) {
	if err := g.discover(ctx); err != nil {
		g.log.Info("guard: no input yet", "error", err)
	}
}

// Close ends any open prompt and waits for in-flight resolutions.
func (g *Guard) Close() {
	g.cancel()
	g.wg.Wait()
}

// Wait blocks until every open prompt has resolved and replayed.
func (g *Guard) Wait() { g.wg.Wait() }

// State returns a snapshot of the arbitration state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		Phase:              g.st.phase,
		InProgress:         g.st.inProgress,
		Replaying:          g.st.replaying,
		LastClassifiedText: g.st.lastText,
		Pending:            g.st.pending != nil,
		Prompting:          g.st.prompting,
		Epoch:              g.st.epoch,
	}
}

// Handle arbitrates one signal. It never blocks on the user: a flagged
// message is cancelled and the prompt runs on its own goroutine. Any
// internal failure fails open.
func (g *Guard) Handle(ctx context.Context, sig Signal) (out Outcome) {
	if !submits(sig) {
		return OutcomeIgnored
	}

	var (
		claimed bool
		epoch   uint64
	)
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("guard: handler panic", "panic", r)
			if claimed {
				g.release(epoch, nil)
			}
			g.audit(Report{Signal: sig.Kind, Outcome: OutcomeAllowed, Reason: ReasonPanic, Error: fmt.Sprint(r)})
			out = OutcomeAllowed
		}
	}()

	if !g.inScope(sig) {
		return OutcomeIgnored
	}

	g.mu.Lock()
	if g.st.replaying {
		g.mu.Unlock()
		return OutcomePassThrough
	}
	if g.st.inProgress || g.st.prompting {
		g.mu.Unlock()
		cancelEvent(sig)
		g.log.Debug("guard: signal suppressed during arbitration", "signal", sig.Kind)
		g.audit(Report{Signal: sig.Kind, Outcome: OutcomeSuppressed})
		return OutcomeSuppressed
	}
	g.st.inProgress = true
	g.st.phase = PhaseArbitrating
	claimed, epoch = true, g.st.epoch
	last := g.st.lastText
	g.mu.Unlock()

	return g.arbitrate(ctx, sig, epoch, last)
}

func (g *Guard) arbitrate(ctx context.Context, sig Signal, epoch uint64, last string) Outcome {
	allow := func(reason Reason, text string, remember bool) Outcome {
		if remember {
			g.release(epoch, &text)
		} else {
			g.release(epoch, nil)
		}
		g.log.Debug("guard: allowed", "signal", sig.Kind, "reason", reason)
		g.audit(Report{Signal: sig.Kind, Outcome: OutcomeAllowed, Reason: reason, Text: text})
		return OutcomeAllowed
	}

	input, err := g.cfg.Locator.FindInput(g.cfg.Document)
	if err != nil {
		return allow(ReasonNoInput, "", false)
	}
	text := locator.ExtractText(input)
	if text == last && last != "" {
		return allow(ReasonDuplicate, "", false)
	}
	if strings.TrimSpace(text) == "" {
		return allow(ReasonEmpty, "", false)
	}

	snoozed, err := snooze.Active(ctx, g.cfg.Snooze, g.cfg.Now())
	if err != nil {
		g.log.Warn("guard: snooze read failed, treating as not snoozed", "error", err)
	}
	if snoozed {
		return allow(ReasonSnoozed, "", false)
	}

	detections := g.cfg.Classifier.Classify(text)
	if len(detections) == 0 {
		return allow(ReasonClean, text, true)
	}

	p := &pending{
		id:         uuid.NewString(),
		signal:     sig,
		input:      input,
		text:       text,
		detections: detections,
		epoch:      epoch,
	}
	if sig.Kind == SignalActivate {
		p.send, _ = g.cfg.Locator.FindSendControlNear(g.cfg.Document, input)
	}

	g.mu.Lock()
	if g.st.epoch != epoch {
		// The page was rediscovered under us and nothing will resolve
		// this arbitration; let the native action through.
		g.mu.Unlock()
		g.log.Info("guard: page reinitialized during arbitration, allowing")
		g.audit(Report{ID: p.id, Signal: sig.Kind, Outcome: OutcomeAllowed, Reason: ReasonStale, Text: text,
			Categories: classifier.CategoriesOf(detections)})
		return OutcomeAllowed
	}
	p.ctx, p.cancel = context.WithCancel(g.ctx)
	g.st.phase = PhaseAwaitingDecision
	g.st.lastText = text
	g.st.pending = p
	g.st.prompting = true
	g.st.stopPrompt = p.cancel
	g.mu.Unlock()

	cancelEvent(sig)

	g.log.Info("guard: submission blocked", "signal", sig.Kind,
		"categories", classifier.CategoriesOf(detections), "id", p.id)
	g.audit(Report{ID: p.id, Signal: sig.Kind, Outcome: OutcomeBlocked, Reason: ReasonFlagged, Text: text,
		Categories: classifier.CategoriesOf(detections)})

	g.wg.Add(1)
	go g.awaitDecision(p)
	return OutcomeBlocked
}

// awaitDecision shows the prompt and applies the user's decision.
func (g *Guard) awaitDecision(p *pending) {
	defer g.wg.Done()
	defer p.cancel()
	res := Resolution{ID: p.id}
	shown := false
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("guard: resolution panic", "panic", r)
			if !shown {
				g.promptDone()
			}
			g.finish(p, nil)
		}
		if g.cfg.OnResolve != nil {
			g.cfg.OnResolve(res)
		}
	}()

	decision, err := g.cfg.Prompt.Show(p.ctx, p.detections)
	shown = true
	g.promptDone()
	res.Decision = decision
	if err != nil {
		// Cancel, but keep the text so an identical manual retry is not
		// blocked a second time.
		g.log.Warn("guard: prompt failed, cancelling", "id", p.id, "error", err)
		res.Err, res.Decision = err, DecisionCancel
		res.Stale = !g.finish(p, &p.text)
		g.audit(Report{ID: p.id, Signal: p.signal.Kind, Decision: DecisionCancel.String(), Error: err.Error()})
		return
	}

	g.audit(Report{ID: p.id, Signal: p.signal.Kind, Decision: decision.String()})

	switch decision {
	case DecisionSnooze:
		rec, err := snooze.Snooze(g.ctx, g.cfg.Snooze, g.cfg.Now(), g.cfg.SnoozeFor)
		if err != nil {
			g.log.Warn("guard: snooze write failed", "error", err)
		} else {
			g.log.Info("guard: snoozed", "until", rec.Until())
		}
		fallthrough
	case DecisionContinue:
		res.Replayed, res.Stale = g.resume(p)
	default:
		empty := ""
		res.Stale = !g.finish(p, &empty)
	}
}

// resume replays the pending intent after the settle delay, holding
// inProgress throughout.
func (g *Guard) resume(p *pending) (replayed, stale bool) {
	if d := g.cfg.SettleDelay; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-g.ctx.Done():
			t.Stop()
			g.finish(p, nil)
			return false, false
		}
	}

	g.mu.Lock()
	if g.st.epoch != p.epoch {
		g.mu.Unlock()
		g.log.Info("guard: stale resolution ignored", "id", p.id)
		return false, true
	}
	g.st.replaying = true
	g.mu.Unlock()

	err := g.replay(p)

	g.mu.Lock()
	g.st.replaying = false
	g.mu.Unlock()
	// The replay has gone out; the same text typed again is a new
	// message and gets classified again.
	empty := ""
	g.finish(p, &empty)

	if err != nil {
		g.log.Warn("guard: replay failed", "id", p.id, "error", err)
		g.audit(Report{ID: p.id, Signal: p.signal.Kind, Decision: DecisionContinue.String(), Error: err.Error()})
		return false, false
	}
	g.log.Info("guard: submission replayed", "id", p.id, "signal", p.signal.Kind)
	return true, false
}

// replay re-issues the original intent against the live page.
func (g *Guard) replay(p *pending) error {
	doc, loc := g.cfg.Document, g.cfg.Locator

	switch p.signal.Kind {
	case SignalActivate:
		send := p.send
		if send == nil || !send.Visible() {
			send, _ = loc.FindSendControl(doc)
		}
		if send == nil {
			return ErrNoSendControl
		}
		return send.Click()

	case SignalKey:
		if send, err := loc.FindSendControl(doc); err == nil {
			return send.Click()
		}
		input, err := loc.FindInput(doc)
		if err != nil {
			return ErrNoSendControl
		}
		key := p.signal.Key
		if key == "" {
			key = "Enter"
		}
		return input.PressKey(key)

	default:
		if send, err := loc.FindSendControl(doc); err == nil {
			return send.Click()
		}
		input, err := loc.FindInput(doc)
		if err != nil {
			return ErrNoSendControl
		}
		return input.Submit()
	}
}

// finish returns to Idle if p still belongs to the current epoch. text,
// when non-nil, replaces lastClassifiedText. It reports whether the state
// was touched.
func (g *Guard) finish(p *pending, text *string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.st.epoch != p.epoch {
		return false
	}
	g.st.inProgress = false
	g.st.phase = PhaseIdle
	g.st.pending = nil
	if text != nil {
		g.st.lastText = *text
	}
	return true
}

// promptDone marks the open prompt as returned.
func (g *Guard) promptDone() {
	g.mu.Lock()
	g.st.prompting = false
	g.st.stopPrompt = nil
	g.mu.Unlock()
}

func (g *Guard) release(epoch uint64, text *string) {
	g.finish(&pending{epoch: epoch}, text)
}

// inScope reports whether the signal targets the guarded input, send
// control or form.
func (g *Guard) inScope(sig Signal) bool {
	if sig.Target == nil {
		return true
	}
	input, err := g.cfg.Locator.FindInput(g.cfg.Document)
	if err != nil {
		return false
	}
	switch sig.Kind {
	case SignalKey:
		return input.Contains(sig.Target)
	case SignalActivate:
		send, err := g.cfg.Locator.FindSendControlNear(g.cfg.Document, input)
		return err == nil && send.Contains(sig.Target)
	case SignalFormSubmit:
		form := dom.Closest(input, "form")
		return form != nil && form.Contains(sig.Target)
	}
	return false
}

func submits(sig Signal) bool {
	switch sig.Kind {
	case SignalKey:
		return sig.Key == "Enter" && !sig.Shift && !sig.Composing
	case SignalActivate, SignalFormSubmit:
		return true
	}
	return false
}

func cancelEvent(sig Signal) {
	if sig.Event != nil {
		sig.Event.PreventDefault()
		sig.Event.StopPropagation()
	}
}

func (g *Guard) audit(r Report) {
	if g.cfg.Auditor == nil {
		return
	}
	r.Site = g.site
	if r.At.IsZero() {
		r.At = g.cfg.Now()
	}
	g.cfg.Auditor.Record(r)
}
