// Package locator finds a chat UI's input and send control in the current
// DOM, starting from the site profile's selectors and degrading to
// structural and heuristic searches when those break.
package locator

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gzhole/promptguard/internal/dom"
	"github.com/gzhole/promptguard/internal/site"
)

// ErrNotFound is returned when every strategy is exhausted.
var ErrNotFound = errors.New("locator: element not found")

// Options tunes the fallback searches.
type Options struct {
	// MinWidth and MinHeight bound the editable-region fallback.
	// Defaults: 50 and 20.
	MinWidth  float64
	MinHeight float64
	// MaxAncestors bounds the walk up from the input. Default: 5.
	MaxAncestors int
	Logger       *slog.Logger
}

func (o *Options) defaults() {
	if o.MinWidth <= 0 {
		o.MinWidth = 50
	}
	if o.MinHeight <= 0 {
		o.MinHeight = 20
	}
	if o.MaxAncestors <= 0 {
		o.MaxAncestors = 5
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Locator resolves elements for one site profile.
type Locator struct {
	profile site.Profile
	opts    Options
	log     *slog.Logger
}

func New(profile site.Profile, opts Options) *Locator {
	opts.defaults()
	return &Locator{profile: profile, opts: opts, log: opts.Logger}
}

// Profile returns the profile the locator was built for.
func (l *Locator) Profile() site.Profile { return l.profile }

// FindInput returns the message input.
func (l *Locator) FindInput(doc dom.Document) (dom.Element, error) {
	for _, loc := range l.profile.Input {
		for _, el := range l.query(doc, string(loc)) {
			if el.Visible() {
				l.log.Debug("locator: input found", "site", l.profile.ID, "selector", loc)
				return el, nil
			}
		}
	}

	for _, el := range l.query(doc, `[contenteditable="true"]`) {
		if el.Visible() && l.sizable(el) {
			l.log.Debug("locator: input found by editable fallback", "site", l.profile.ID)
			return el, nil
		}
	}

	for _, el := range l.query(doc, "textarea") {
		if el.Visible() {
			l.log.Debug("locator: input found by textarea fallback", "site", l.profile.ID)
			return el, nil
		}
	}

	return nil, ErrNotFound
}

// FindSendControl returns the send control, locating the input itself for
// the ancestor fallback.
func (l *Locator) FindSendControl(doc dom.Document) (dom.Element, error) {
	input, _ := l.FindInput(doc)
	return l.FindSendControlNear(doc, input)
}

// FindSendControlNear is FindSendControl with an already located input.
// input may be nil, which skips the ancestor fallback.
func (l *Locator) FindSendControlNear(doc dom.Document, input dom.Element) (dom.Element, error) {
	for _, loc := range l.profile.Send {
		for _, el := range l.query(doc, string(loc)) {
			if el.Disabled() || !el.Visible() {
				continue
			}
			if Excluded(CandidateOf(el), false) {
				l.log.Debug("locator: skipping navigation control", "selector", loc)
				continue
			}
			l.log.Debug("locator: send control found", "site", l.profile.ID, "selector", loc)
			return el, nil
		}
	}

	if input != nil {
		container := input.Parent()
		for level := 1; container != nil && level <= l.opts.MaxAncestors; level++ {
			if el := l.best(l.queryIn(container, "button"), false); el != nil {
				l.log.Debug("locator: send control found near input", "level", level)
				return el, nil
			}
			container = container.Parent()
		}
	}

	if el := l.best(l.query(doc, "button"), true); el != nil {
		l.log.Debug("locator: send control found by page scan")
		return el, nil
	}
	return nil, ErrNotFound
}

// best returns the highest scoring usable candidate, first one on ties,
// or nil if none scores above zero.
func (l *Locator) best(buttons []dom.Element, withCancel bool) dom.Element {
	var (
		top      dom.Element
		topScore int
	)
	for _, el := range buttons {
		if el.Disabled() || !el.Visible() {
			continue
		}
		c := CandidateOf(el)
		if Excluded(c, withCancel) {
			continue
		}
		if s := Score(c); s > topScore {
			top, topScore = el, s
		}
	}
	return top
}

// sizable passes elements above the minimum size. Unmeasurable elements
// pass.
func (l *Locator) sizable(el dom.Element) bool {
	w, h, ok := el.Size()
	if !ok {
		return true
	}
	return w > l.opts.MinWidth && h > l.opts.MinHeight
}

func (l *Locator) query(doc dom.Document, selector string) []dom.Element {
	els, err := doc.QueryAll(selector)
	if err != nil {
		l.log.Warn("locator: selector failed", "selector", selector, "error", err)
		return nil
	}
	return els
}

func (l *Locator) queryIn(el dom.Element, selector string) []dom.Element {
	els, err := el.QueryAll(selector)
	if err != nil {
		l.log.Warn("locator: selector failed", "selector", selector, "error", err)
		return nil
	}
	return els
}

// ExtractText returns the message currently typed into an input.
// Rich-text editors keep one <p> per line; empty placeholder paragraphs
// are skipped.
func ExtractText(el dom.Element) string {
	if el == nil {
		return ""
	}
	switch el.Tag() {
	case "textarea", "input":
		return el.Value()
	}
	if !dom.Editable(el) {
		return el.Text()
	}

	paragraphs, _ := el.QueryAll("p")
	var b strings.Builder
	for _, p := range paragraphs {
		_, placeholder := p.Attr("data-placeholder")
		text := p.Text()
		if !placeholder || strings.TrimSpace(text) != "" {
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		return s
	}
	return el.Text()
}
