package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/dom"
	"github.com/gzhole/promptguard/internal/guard"
	"github.com/gzhole/promptguard/internal/locator"
	"github.com/gzhole/promptguard/internal/site"
	"github.com/gzhole/promptguard/internal/snooze"
	"github.com/gzhole/promptguard/internal/watch"
)

//go:embed shim.js
var shimJS string

const (
	signalBinding   = "__promptguard_signal"
	mutationBinding = "__promptguard_mutation"

	attrInput   = "data-promptguard-input"
	attrSend    = "data-promptguard-send"
	attrSpecial = "data-promptguard-special"
)

// SessionConfig is shared by every session a host attaches.
type SessionConfig struct {
	Classifier  *classifier.Classifier
	Snooze      snooze.Store
	SnoozeFor   time.Duration
	Locale      string
	ShowMatches bool
	// SettleWindow is the mutation quiet period before a check.
	SettleWindow time.Duration
	// SettleDelay is the pause before a replay.
	SettleDelay time.Duration
	// PollInterval re-checks the page even without mutations.
	PollInterval time.Duration
	// OpTimeout bounds every CDP call. Default: 3s.
	OpTimeout time.Duration
	Auditor   guard.Auditor
	Logger    *slog.Logger
}

func (c *SessionConfig) defaults() {
	if c.Classifier == nil {
		c.Classifier = classifier.New(classifier.WithLocale(c.Locale))
	}
	if c.Snooze == nil {
		c.Snooze = snooze.NewMemoryStore()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// signalPayload is what the shim sends through the signal binding.
type signalPayload struct {
	Kind      string `json:"kind"`
	Key       string `json:"key"`
	Shift     bool   `json:"shift"`
	Composing bool   `json:"composing"`
}

func (p signalPayload) signal() (guard.Signal, error) {
	sig := guard.Signal{Key: p.Key, Shift: p.Shift, Composing: p.Composing}
	switch p.Kind {
	case "key":
		sig.Kind = guard.SignalKey
	case "activate":
		sig.Kind = guard.SignalActivate
	case "submit":
		sig.Kind = guard.SignalFormSubmit
	default:
		return sig, fmt.Errorf("browser: unknown signal kind %q", p.Kind)
	}
	return sig, nil
}

// Session guards one tab.
type Session struct {
	cfg     SessionConfig
	profile site.Profile
	page    *rod.Page
	doc     *Document
	loc     *locator.Locator
	guard   *guard.Guard
	watcher *watch.Watcher
	dialog  *DialogPrompt
	log     *slog.Logger

	mu    sync.Mutex
	input *Element
	send  *Element
	url   string
}

var _ guard.Binder = (*Session)(nil)

// Attach installs the shim and bindings in page and builds its guard.
// Call Run to start guarding.
func Attach(ctx context.Context, page *rod.Page, profile site.Profile, pageURL string, cfg SessionConfig) (*Session, error) {
	cfg.defaults()
	log := cfg.Logger.With("site", profile.ID, "target", string(page.TargetID))

	for _, name := range []string{signalBinding, mutationBinding, decisionBinding} {
		if err := (proto.RuntimeAddBinding{Name: name}).Call(page); err != nil {
			log.Warn("browser: addBinding failed (may already exist)", "binding", name, "error", err)
		}
	}
	if _, err := page.EvalOnNewDocument(shimJS); err != nil {
		return nil, fmt.Errorf("browser: register shim: %w", err)
	}

	doc := NewDocument(ctx, page, cfg.OpTimeout)
	if _, err := doc.Eval("() => {\n" + shimJS + "\n}"); err != nil {
		return nil, fmt.Errorf("browser: inject shim: %w", err)
	}

	s := &Session{
		cfg:     cfg,
		profile: profile,
		page:    page,
		doc:     doc,
		loc:     locator.New(profile, locator.Options{Logger: log}),
		dialog:  NewDialogPrompt(doc, cfg.Locale, cfg.SnoozeFor, cfg.ShowMatches),
		log:     log,
		url:     pageURL,
	}

	g, err := guard.New(guard.Config{
		Document:    doc,
		Locator:     s.loc,
		Prompt:      s.dialog,
		Classifier:  cfg.Classifier,
		Snooze:      cfg.Snooze,
		SnoozeFor:   cfg.SnoozeFor,
		SettleDelay: cfg.SettleDelay,
		Binder:      s,
		Auditor:     cfg.Auditor,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	s.guard = g
	s.watcher = watch.New(watch.Config{
		Window:   cfg.SettleWindow,
		Interval: cfg.PollInterval,
		Check:    g.Check,
		Logger:   log,
	})
	return s, nil
}

// Run guards the tab until ctx ends.
func (s *Session) Run(ctx context.Context) {
	s.log.Info("browser: guarding tab", "url", s.URL())
	s.guard.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.watcher.Run(ctx)
	}()

	s.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		switch e.Name {
		case signalBinding:
			go s.onSignal(ctx, e.Payload)
		case mutationBinding:
			s.watcher.Notify()
		case decisionBinding:
			if err := s.dialog.resolve(e.Payload); err != nil {
				s.log.Debug("browser: decision dropped", "error", err)
			}
		}
	})()

	s.guard.Close()
	wg.Wait()
	s.log.Info("browser: tab released")
}

func (s *Session) onSignal(ctx context.Context, payload string) {
	var p signalPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		s.log.Warn("browser: bad signal payload", "error", err)
		return
	}
	sig, err := p.signal()
	if err != nil {
		s.log.Warn("browser: bad signal", "error", err)
		return
	}

	out := s.guard.Handle(ctx, sig)
	s.log.Debug("browser: signal handled", "signal", sig.Kind, "outcome", out)
	if !out.Proceeds() || out == guard.OutcomePassThrough {
		return
	}
	// The shim cancelled the native action before asking; re-issue it.
	if err := s.reissue(sig); err != nil {
		s.log.Warn("browser: re-issue failed", "signal", sig.Kind, "error", err)
	}
}

func (s *Session) reissue(sig guard.Signal) error {
	s.mu.Lock()
	in, sd := s.input, s.send
	s.mu.Unlock()

	var input, send dom.Element
	if in != nil {
		input = in
	}
	if sd != nil {
		send = sd
	}
	return reissue(s.doc, s.loc, sig, input, send)
}

// reissue performs sig's native action on the page. input and send are
// the bound elements, nil when unbound; missing or hidden ones are
// located again.
func reissue(doc dom.Document, loc *locator.Locator, sig guard.Signal, input, send dom.Element) error {
	if input == nil {
		el, err := loc.FindInput(doc)
		if err != nil {
			return err
		}
		input = el
	}

	switch sig.Kind {
	case guard.SignalKey:
		return input.PressKey("Enter")
	case guard.SignalActivate:
		if send == nil || !send.Visible() {
			el, err := loc.FindSendControlNear(doc, input)
			if err != nil {
				return err
			}
			send = el
		}
		return send.Click()
	default:
		return input.Submit()
	}
}

// Bind moves the shim's markers to the guarded elements.
func (s *Session) Bind(_ context.Context, input, send dom.Element) error {
	in, _ := input.(*Element)
	sd, _ := send.(*Element)

	s.mu.Lock()
	unchanged := in.SameNode(s.input) && sd.SameNode(s.send)
	s.mu.Unlock()
	if unchanged && in != nil {
		if v, ok := in.Attr(attrInput); ok && v == "" {
			return nil
		}
	}

	if _, err := s.doc.Eval(`(a, b) => {
		document.querySelectorAll("[" + a + "],[" + b + "]").forEach((n) => {
			n.removeAttribute(a);
			n.removeAttribute(b);
		});
	}`, attrInput, attrSend); err != nil {
		return fmt.Errorf("browser: clear markers: %w", err)
	}
	if s.profile.SpecialInterception {
		if _, err := s.doc.Eval(`(a) => document.documentElement.setAttribute(a, "")`, attrSpecial); err != nil {
			return fmt.Errorf("browser: mark special: %w", err)
		}
	}
	if in != nil {
		if err := in.mark(attrInput); err != nil {
			return fmt.Errorf("browser: mark input: %w", err)
		}
	}
	if sd != nil {
		if err := sd.mark(attrSend); err != nil {
			return fmt.Errorf("browser: mark send: %w", err)
		}
	}

	s.mu.Lock()
	s.input, s.send = in, sd
	s.mu.Unlock()
	s.log.Debug("browser: elements bound", "send", sd != nil)
	return nil
}

// URL is the page address last seen by the host.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *Session) setURL(u string) {
	s.mu.Lock()
	s.url = u
	s.mu.Unlock()
}

// State is the guard's arbitration state.
func (s *Session) State() guard.State { return s.guard.State() }

// Bound reports whether the session has located an input.
func (s *Session) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input != nil
}
