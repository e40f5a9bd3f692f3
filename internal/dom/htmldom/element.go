package htmldom

import (
	"errors"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/gzhole/promptguard/internal/dom"
)

// ErrNoForm is returned by Submit when the element has no enclosing form.
var ErrNoForm = errors.New("htmldom: no enclosing form")

// Element is a node of a Document.
type Element struct {
	doc  *Document
	node *html.Node
}

var _ dom.Element = (*Element)(nil)

func (e *Element) Tag() string { return e.node.Data }

func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return attr(e.node, name)
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for i := range e.node.Attr {
		if e.node.Attr[i].Key == name {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes an attribute if present.
func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	attrs := e.node.Attr[:0]
	for _, a := range e.node.Attr {
		if a.Key != name {
			attrs = append(attrs, a)
		}
	}
	e.node.Attr = attrs
}

func (e *Element) Text() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return textContent(e.node)
}

func (e *Element) Value() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	switch e.node.Data {
	case "textarea":
		if v, ok := e.doc.values[e.node]; ok {
			return v
		}
		return textContent(e.node)
	case "input", "select", "button":
		v, _ := attr(e.node, "value")
		return v
	}
	return ""
}

// SetValue sets the form value, as typing into the field would.
func (e *Element) SetValue(v string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.node.Data == "textarea" {
		e.doc.values[e.node] = v
		return
	}
	for i := range e.node.Attr {
		if e.node.Attr[i].Key == "value" {
			e.node.Attr[i].Val = v
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: "value", Val: v})
}

// SetInnerHTML replaces the children of e with the parsed fragment.
func (e *Element) SetInnerHTML(fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.node)
	if err != nil {
		return err
	}
	e.doc.mu.Lock()
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	e.doc.mu.Unlock()
	e.doc.notify()
	return nil
}

func (e *Element) Visible() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if !e.doc.attached(e.node) {
		return false
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if hiddenTags[n.Data] {
			return false
		}
		if _, ok := attr(n, "hidden"); ok {
			return false
		}
		if n.Data == "input" {
			if t, _ := attr(n, "type"); strings.EqualFold(t, "hidden") {
				return false
			}
		}
		style := parseStyle(n)
		if style["display"] == "none" || style["visibility"] == "hidden" || style["visibility"] == "collapse" {
			return false
		}
		if op, ok := style["opacity"]; ok {
			if f, err := strconv.ParseFloat(op, 64); err == nil && f == 0 {
				return false
			}
		}
	}
	return true
}

var hiddenTags = map[string]bool{
	"head": true, "script": true, "style": true, "template": true, "noscript": true,
}

// Size reads inline width and height in px.
func (e *Element) Size() (w, h float64, ok bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	style := parseStyle(e.node)
	w, okW := px(style["width"])
	h, okH := px(style["height"])
	if !okW || !okH {
		return 0, 0, false
	}
	return w, h, true
}

func (e *Element) Disabled() bool {
	_, ok := e.Attr("disabled")
	return ok
}

func (e *Element) Parent() dom.Element {
	e.doc.mu.RLock()
	p := e.node.Parent
	e.doc.mu.RUnlock()
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(p)
}

func (e *Element) Contains(other dom.Element) bool {
	o, ok := other.(*Element)
	if !ok || o == nil || o.doc != e.doc {
		return false
	}
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for n := o.node; n != nil; n = n.Parent {
		if n == e.node {
			return true
		}
	}
	return false
}

func (e *Element) QueryAll(selector string) ([]dom.Element, error) {
	nodes, err := e.doc.match(e.node, selector)
	if err != nil {
		return nil, err
	}
	return e.doc.wrapAll(nodes), nil
}

// AddEventListener registers fn on e for the bubble phase.
func (e *Element) AddEventListener(typ string, fn Listener) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.doc.bubble[e.node] == nil {
		e.doc.bubble[e.node] = make(map[string][]Listener)
	}
	e.doc.bubble[e.node][typ] = append(e.doc.bubble[e.node][typ], fn)
}

// Click dispatches a click. Disabled controls ignore it, like a browser.
func (e *Element) Click() error {
	if e.Disabled() {
		return nil
	}
	e.doc.Dispatch(&Event{Type: EventClick, Target: e})
	return nil
}

func (e *Element) PressKey(key string) error {
	e.doc.Dispatch(&Event{Type: EventKeyDown, Target: e, Key: key})
	return nil
}

// Submit requests submission of the enclosing form.
func (e *Element) Submit() error {
	form := e.closest("form")
	if form == nil {
		return ErrNoForm
	}
	e.doc.Dispatch(&Event{Type: EventSubmit, Target: form})
	return nil
}

func (e *Element) closest(tag string) *Element {
	e.doc.mu.RLock()
	var found *html.Node
	for n := e.node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			break
		}
	}
	e.doc.mu.RUnlock()
	if found == nil {
		return nil
	}
	return e.doc.wrap(found)
}

// submitsForm reports whether a button's activation submits its form.
func (e *Element) submitsForm() bool {
	t, ok := e.Attr("type")
	return !ok || strings.EqualFold(t, "submit")
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func parseStyle(n *html.Node) map[string]string {
	raw, ok := attr(n, "style")
	if !ok {
		return nil
	}
	out := make(map[string]string)
	for _, decl := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(v)
	}
	return out
}

func px(v string) (float64, bool) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}
