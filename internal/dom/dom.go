// Package dom defines the narrow view of a live page that the locator and
// the submission guard work against. Hosts implement it: htmldom for
// parsed HTML, browser for a Chrome tab.
package dom

// Document is the page a guard is attached to.
type Document interface {
	// QueryAll returns every element matching a CSS selector in document
	// order. An invalid selector is an error, not an empty result.
	QueryAll(selector string) ([]Element, error)
}

// Element is one node of the page.
//
// Accessors never fail: a host that loses the node reports zero values
// (empty text, not visible) so callers degrade to their fallbacks.
type Element interface {
	// Tag is the lower-case tag name.
	Tag() string
	Attr(name string) (string, bool)
	// Text is the element's textContent.
	Text() string
	// Value is the form value of textarea and input elements.
	Value() string
	// Visible reports whether the element is attached and rendered
	// (not display:none, visibility:hidden, opacity:0 or hidden).
	Visible() bool
	// Size is the rendered width and height. ok is false when the host
	// cannot measure layout.
	Size() (w, h float64, ok bool)
	Disabled() bool
	// Parent is nil at the document root.
	Parent() Element
	// Contains reports whether other is this element or a descendant.
	Contains(other Element) bool
	QueryAll(selector string) ([]Element, error)

	// Click activates the element as a user click would.
	Click() error
	// PressKey dispatches a key press at the element.
	PressKey(key string) error
	// Submit submits the form that encloses the element.
	Submit() error
}

// Closest walks el and its ancestors and returns the first one with the
// given tag, or nil.
func Closest(el Element, tag string) Element {
	for cur := el; cur != nil; cur = cur.Parent() {
		if cur.Tag() == tag {
			return cur
		}
	}
	return nil
}

// Editable reports whether el is a contenteditable region.
func Editable(el Element) bool {
	v, ok := el.Attr("contenteditable")
	return ok && (v == "" || v == "true" || v == "plaintext-only")
}

// Same reports whether a and b are the same page node. Hosts whose
// elements are not unique per node implement SameNode; otherwise the
// values are compared directly.
func Same(a, b Element) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if s, ok := a.(interface{ SameNode(Element) bool }); ok {
		return s.SameNode(b)
	}
	return a == b
}
