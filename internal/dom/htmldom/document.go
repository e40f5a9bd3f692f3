// Package htmldom is an in-memory dom.Document over golang.org/x/net/html.
//
// It models enough of a browser for the guard to run against a parsed
// page: CSS selectors via cascadia, inline-style visibility, a capture
// and bubble event dispatch with default actions, and mutation
// notifications. It has no layout engine; sizes come from inline
// width/height in px.
package htmldom

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/gzhole/promptguard/internal/dom"
)

// Listener handles a dispatched event.
type Listener func(*Event)

// Document is a parsed page. It is safe for concurrent use; listeners
// run without the document lock held and may query or mutate it.
type Document struct {
	mu        sync.RWMutex
	root      *html.Node
	elems     map[*html.Node]*Element
	values    map[*html.Node]string
	capture   map[string][]Listener
	bubble    map[*html.Node]map[string][]Listener
	defaults  map[string][]Listener
	mutations []func()
	submitted []*Element
}

// Parse reads an HTML page.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return &Document{
		root:     root,
		elems:    make(map[*html.Node]*Element),
		values:   make(map[*html.Node]string),
		capture:  make(map[string][]Listener),
		bubble:   make(map[*html.Node]map[string][]Listener),
		defaults: make(map[string][]Listener),
	}, nil
}

// ParseString parses an HTML page held in s.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// QueryAll implements dom.Document.
func (d *Document) QueryAll(selector string) ([]dom.Element, error) {
	nodes, err := d.match(d.root, selector)
	if err != nil {
		return nil, err
	}
	return d.wrapAll(nodes), nil
}

// Query returns the first element matching selector, or nil.
func (d *Document) Query(selector string) (*Element, error) {
	nodes, err := d.match(d.root, selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return d.wrap(nodes[0]), nil
}

// Body returns the <body> element.
func (d *Document) Body() *Element {
	el, _ := d.Query("body")
	return el
}

// HTML renders the current tree.
func (d *Document) HTML() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, d.root)
	return buf.String()
}

// AddCaptureListener registers fn at the document in the capture phase.
// Capture listeners run before any element listener, in registration
// order.
func (d *Document) AddCaptureListener(typ string, fn Listener) {
	d.mu.Lock()
	d.capture[typ] = append(d.capture[typ], fn)
	d.mu.Unlock()
}

// OnDefault registers fn as a default action for typ. Default actions run
// after propagation unless a listener called PreventDefault.
func (d *Document) OnDefault(typ string, fn Listener) {
	d.mu.Lock()
	d.defaults[typ] = append(d.defaults[typ], fn)
	d.mu.Unlock()
}

// OnMutation registers fn to be called after every structural change.
func (d *Document) OnMutation(fn func()) {
	d.mu.Lock()
	d.mutations = append(d.mutations, fn)
	d.mu.Unlock()
}

// Submitted returns the forms that completed a native submission.
func (d *Document) Submitted() []*Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Element(nil), d.submitted...)
}

// Remove detaches el from the tree.
func (d *Document) Remove(el *Element) {
	d.mu.Lock()
	if p := el.node.Parent; p != nil {
		p.RemoveChild(el.node)
	}
	d.mu.Unlock()
	d.notify()
}

// AppendHTML parses fragment in the context of parent and appends the
// resulting nodes. The new top-level elements are returned.
func (d *Document) AppendHTML(parent *Element, fragment string) ([]*Element, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent.node)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse fragment: %w", err)
	}
	var out []*Element
	d.mu.Lock()
	for _, n := range nodes {
		parent.node.AppendChild(n)
		if n.Type == html.ElementNode {
			out = append(out, d.wrapLocked(n))
		}
	}
	d.mu.Unlock()
	d.notify()
	return out, nil
}

func (d *Document) notify() {
	d.mu.RLock()
	fns := append([]func(){}, d.mutations...)
	d.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

var (
	selectorMu    sync.Mutex
	selectorCache = make(map[string]cascadia.Selector)
)

func compile(selector string) (cascadia.Selector, error) {
	selectorMu.Lock()
	defer selectorMu.Unlock()
	if s, ok := selectorCache[selector]; ok {
		return s, nil
	}
	s, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("htmldom: selector %q: %w", selector, err)
	}
	selectorCache[selector] = s
	return s, nil
}

// match returns the descendants of root matching selector.
func (d *Document) match(root *html.Node, selector string) ([]*html.Node, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*html.Node
	for _, n := range sel.MatchAll(root) {
		if n != root {
			out = append(out, n)
		}
	}
	return out, nil
}

func (d *Document) wrapAll(nodes []*html.Node) []dom.Element {
	out := make([]dom.Element, len(nodes))
	for i, n := range nodes {
		out[i] = d.wrap(n)
	}
	return out
}

func (d *Document) wrap(n *html.Node) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrapLocked(n)
}

func (d *Document) wrapLocked(n *html.Node) *Element {
	if el, ok := d.elems[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elems[n] = el
	return el
}

// attached reports whether n is still reachable from the root.
func (d *Document) attached(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}
	return false
}
