package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/gzhole/promptguard/internal/dom"
)

// maxCachedNodes bounds the identity cache. Past it the cache is reset
// and a node seen before gets a new *Element; SameNode still matches it.
const maxCachedNodes = 4096

// ErrUnsupportedKey is returned by PressKey for keys other than Enter.
var ErrUnsupportedKey = errors.New("browser: unsupported key")

// Document is a live Chrome page seen through dom.Document. Every call is
// a CDP round trip bounded by the document's timeout; failures degrade to
// zero values.
type Document struct {
	page    *rod.Page
	ctx     context.Context
	timeout time.Duration

	mu    sync.Mutex
	nodes map[proto.DOMBackendNodeID]*Element
}

// NewDocument wraps page. Operations end with ctx.
func NewDocument(ctx context.Context, page *rod.Page, timeout time.Duration) *Document {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Document{
		page:    page,
		ctx:     ctx,
		timeout: timeout,
		nodes:   make(map[proto.DOMBackendNodeID]*Element),
	}
}

func (d *Document) op() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.ctx, d.timeout)
}

func (d *Document) QueryAll(selector string) ([]dom.Element, error) {
	ctx, cancel := d.op()
	defer cancel()
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return d.wrapAll(els), nil
}

// Eval runs js in the page.
func (d *Document) Eval(js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	ctx, cancel := d.op()
	defer cancel()
	return d.page.Context(ctx).Eval(js, args...)
}

// WithBypass runs fn with the page shim's interception switched off, so
// actions fn performs reach the page's own handlers.
func (d *Document) WithBypass(fn func() error) error {
	if _, err := d.Eval(`() => { window.__promptguardBypass = true }`); err != nil {
		return fmt.Errorf("browser: enable bypass: %w", err)
	}
	defer func() {
		_, _ = d.Eval(`() => { window.__promptguardBypass = false }`)
	}()
	return fn()
}

func (d *Document) wrapAll(els rod.Elements) []dom.Element {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		if w := d.wrap(el); w != nil {
			out = append(out, w)
		}
	}
	return out
}

// wrap returns the cached Element for el's node so that the same node
// always yields the same dom.Element.
func (d *Document) wrap(el *rod.Element) *Element {
	ctx, cancel := d.op()
	defer cancel()
	node, err := el.Context(ctx).Describe(0, false)
	if err != nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.nodes[node.BackendNodeID]; ok {
		return cached
	}
	if len(d.nodes) >= maxCachedNodes {
		d.nodes = make(map[proto.DOMBackendNodeID]*Element)
	}
	w := &Element{doc: d, el: el, id: node.BackendNodeID, tag: strings.ToLower(node.LocalName)}
	d.nodes[node.BackendNodeID] = w
	return w
}

// Element is one node of a Chrome page.
type Element struct {
	doc *Document
	el  *rod.Element
	id  proto.DOMBackendNodeID
	tag string
}

// SameNode reports whether other wraps the same node of the same page.
func (e *Element) SameNode(other dom.Element) bool {
	o, ok := other.(*Element)
	if !ok || e == nil || o == nil {
		return ok && e == o
	}
	return e.doc == o.doc && e.id == o.id
}

func (e *Element) eval(js string) (*proto.RuntimeRemoteObject, error) {
	ctx, cancel := e.doc.op()
	defer cancel()
	return e.el.Context(ctx).Eval(js)
}

func (e *Element) Tag() string { return e.tag }

func (e *Element) Attr(name string) (string, bool) {
	ctx, cancel := e.doc.op()
	defer cancel()
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (e *Element) Text() string {
	res, err := e.eval(`() => this.textContent || ""`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (e *Element) Value() string {
	res, err := e.eval(`() => ("value" in this && this.value != null) ? String(this.value) : ""`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

const visibleJS = `() => {
	if (!this.isConnected) return false;
	for (let n = this; n && n.nodeType === 1; n = n.parentElement) {
		if (n.hidden) return false;
		const s = getComputedStyle(n);
		if (s.display === "none" || s.visibility === "hidden" || s.visibility === "collapse") return false;
		if (parseFloat(s.opacity) === 0) return false;
	}
	return this.getClientRects().length > 0;
}`

func (e *Element) Visible() bool {
	res, err := e.eval(visibleJS)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e *Element) Size() (w, h float64, ok bool) {
	res, err := e.eval(`() => { const r = this.getBoundingClientRect(); return {w: r.width, h: r.height} }`)
	if err != nil {
		return 0, 0, false
	}
	return res.Value.Get("w").Num(), res.Value.Get("h").Num(), true
}

func (e *Element) Disabled() bool {
	res, err := e.eval(`() => !!this.disabled`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e *Element) Parent() dom.Element {
	res, err := e.eval(`() => this.parentElement === null`)
	if err != nil || res.Value.Bool() {
		return nil
	}
	ctx, cancel := e.doc.op()
	defer cancel()
	p, err := e.el.Context(ctx).Parent()
	if err != nil {
		return nil
	}
	if w := e.doc.wrap(p); w != nil {
		return w
	}
	return nil
}

func (e *Element) Contains(other dom.Element) bool {
	o, ok := other.(*Element)
	if !ok || o == nil {
		return false
	}
	if o == e {
		return true
	}
	ctx, cancel := e.doc.op()
	defer cancel()
	in, err := e.el.Context(ctx).ContainsElement(o.el)
	return err == nil && in
}

func (e *Element) QueryAll(selector string) ([]dom.Element, error) {
	ctx, cancel := e.doc.op()
	defer cancel()
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return e.doc.wrapAll(els), nil
}

// Click performs a trusted mouse click through CDP.
func (e *Element) Click() error {
	return e.doc.WithBypass(func() error {
		ctx, cancel := e.doc.op()
		defer cancel()
		return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
	})
}

// PressKey focuses the element and types key through CDP. Only Enter is
// supported.
func (e *Element) PressKey(key string) error {
	if key != "Enter" {
		return fmt.Errorf("%w: %q", ErrUnsupportedKey, key)
	}
	return e.doc.WithBypass(func() error {
		ctx, cancel := e.doc.op()
		defer cancel()
		if err := e.el.Context(ctx).Focus(); err != nil {
			return fmt.Errorf("browser: focus: %w", err)
		}
		return e.doc.page.Keyboard.Press(input.Enter)
	})
}

// Submit submits the enclosing form the way the browser would.
func (e *Element) Submit() error {
	return e.doc.WithBypass(func() error {
		res, err := e.eval(`() => {
			const f = this.closest("form");
			if (!f) return false;
			if (f.requestSubmit) f.requestSubmit(); else f.submit();
			return true;
		}`)
		if err != nil {
			return fmt.Errorf("browser: submit: %w", err)
		}
		if !res.Value.Bool() {
			return errors.New("browser: element is not in a form")
		}
		return nil
	})
}

// mark sets or clears a marker attribute.
func (e *Element) mark(attr string) error {
	ctx, cancel := e.doc.op()
	defer cancel()
	_, err := e.el.Context(ctx).Eval(`(a) => this.setAttribute(a, "")`, attr)
	return err
}
