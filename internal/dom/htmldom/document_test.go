package htmldom

import (
	"strings"
	"testing"

	"github.com/gzhole/promptguard/internal/dom"
)

const page = `<html><body>
<nav><button aria-label="Open sidebar">=</button></nav>
<form id="chat">
  <textarea id="prompt" style="width: 400px; height: 60px">hello</textarea>
  <div class="editor" contenteditable="true"><p>first</p><p data-placeholder="Ask">second</p></div>
  <button type="button" id="attach">+</button>
  <button id="send" aria-label="Send message"><svg></svg></button>
</form>
<div hidden><textarea id="ghost"></textarea></div>
<div style="display: none"><button id="gone">Send</button></div>
<div style="opacity:0"><button id="faded">Send</button></div>
<div style="visibility: hidden !important"><button id="invisible">Send</button></div>
<input type="hidden" id="token" value="x">
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseString(s)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return doc
}

func mustQuery(t *testing.T, doc *Document, sel string) *Element {
	t.Helper()
	el, err := doc.Query(sel)
	if err != nil {
		t.Fatalf("Query(%q): %v", sel, err)
	}
	if el == nil {
		t.Fatalf("Query(%q): no match", sel)
	}
	return el
}

func TestQueryAll_Selectors(t *testing.T) {
	doc := mustParse(t, page)
	tests := []struct {
		selector string
		want     int
	}{
		{"textarea", 2},
		{`div[contenteditable="true"]`, 1},
		{`button[aria-label*="Send"]`, 1},
		{"button:has(svg)", 1},
		{"form button:last-child", 1},
		{"button:not([disabled])", 6},
	}
	for _, tt := range tests {
		got, err := doc.QueryAll(tt.selector)
		if err != nil {
			t.Errorf("QueryAll(%q): %v", tt.selector, err)
			continue
		}
		if len(got) != tt.want {
			t.Errorf("QueryAll(%q) = %d elements, want %d", tt.selector, len(got), tt.want)
		}
	}
}

func TestQueryAll_InvalidSelector(t *testing.T) {
	doc := mustParse(t, page)
	if _, err := doc.QueryAll("button[[["); err == nil {
		t.Error("expected error for invalid selector")
	}
}

func TestQueryAll_StableIdentity(t *testing.T) {
	doc := mustParse(t, page)
	a := mustQuery(t, doc, "#send")
	b := mustQuery(t, doc, `button[aria-label*="Send"]`)
	if a != b {
		t.Error("the same node should wrap to the same *Element")
	}
}

func TestElementQueryAll_ExcludesSelf(t *testing.T) {
	doc := mustParse(t, page)
	form := mustQuery(t, doc, "#chat")
	got, err := form.QueryAll("form, button")
	if err != nil {
		t.Fatal(err)
	}
	for _, el := range got {
		if el.Tag() == "form" {
			t.Error("element QueryAll should not match the element itself")
		}
	}
	if len(got) != 2 {
		t.Errorf("got %d buttons, want 2", len(got))
	}
}

func TestVisible(t *testing.T) {
	doc := mustParse(t, page)
	tests := []struct {
		selector string
		want     bool
	}{
		{"#prompt", true},
		{"#send", true},
		{"#ghost", false},
		{"#gone", false},
		{"#faded", false},
		{"#invisible", false},
		{"#token", false},
	}
	for _, tt := range tests {
		if got := mustQuery(t, doc, tt.selector).Visible(); got != tt.want {
			t.Errorf("Visible(%s) = %v, want %v", tt.selector, got, tt.want)
		}
	}
}

func TestVisible_Detached(t *testing.T) {
	doc := mustParse(t, page)
	el := mustQuery(t, doc, "#prompt")
	doc.Remove(el)
	if el.Visible() {
		t.Error("a removed element should not be visible")
	}
}

func TestSize(t *testing.T) {
	doc := mustParse(t, page)
	w, h, ok := mustQuery(t, doc, "#prompt").Size()
	if !ok || w != 400 || h != 60 {
		t.Errorf("Size = (%v, %v, %v), want (400, 60, true)", w, h, ok)
	}
	if _, _, ok := mustQuery(t, doc, "#send").Size(); ok {
		t.Error("Size without inline dimensions should be unknown")
	}
}

func TestValueAndText(t *testing.T) {
	doc := mustParse(t, page)
	ta := mustQuery(t, doc, "#prompt")
	if got := ta.Value(); got != "hello" {
		t.Errorf("initial textarea value = %q, want %q", got, "hello")
	}
	ta.SetValue("call 090-1234-5678")
	if got := ta.Value(); got != "call 090-1234-5678" {
		t.Errorf("Value after SetValue = %q", got)
	}
	ed := mustQuery(t, doc, ".editor")
	if got := ed.Text(); got != "firstsecond" {
		t.Errorf("Text = %q, want %q", got, "firstsecond")
	}
	if !dom.Editable(ed) {
		t.Error("contenteditable div should be editable")
	}
}

func TestParentContainsClosest(t *testing.T) {
	doc := mustParse(t, page)
	send := mustQuery(t, doc, "#send")
	form := mustQuery(t, doc, "#chat")
	svg := mustQuery(t, doc, "#send svg")

	if p := send.Parent(); p != dom.Element(form) {
		t.Errorf("Parent of #send = %v, want form", p)
	}
	if !send.Contains(svg) || !send.Contains(send) {
		t.Error("Contains should be inclusive of descendants and self")
	}
	if svg.Contains(send) {
		t.Error("a child does not contain its parent")
	}
	if got := dom.Closest(svg, "form"); got != dom.Element(form) {
		t.Errorf("Closest(svg, form) = %v", got)
	}
	html := mustQuery(t, doc, "html")
	if html.Parent() != nil {
		t.Error("the root element's Parent should be nil")
	}
}

func TestDispatch_CaptureBeforeBubble(t *testing.T) {
	doc := mustParse(t, page)
	send := mustQuery(t, doc, "#send")
	var order []string
	doc.AddCaptureListener(EventClick, func(*Event) { order = append(order, "capture") })
	send.AddEventListener(EventClick, func(*Event) { order = append(order, "target") })
	mustQuery(t, doc, "#chat").AddEventListener(EventClick, func(*Event) { order = append(order, "form") })

	if err := send.Click(); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(order, ","); got != "capture,target,form" {
		t.Errorf("dispatch order = %s", got)
	}
}

func TestDispatch_StopAndPrevent(t *testing.T) {
	doc := mustParse(t, page)
	send := mustQuery(t, doc, "#send")
	pageSaw := false
	send.AddEventListener(EventClick, func(*Event) { pageSaw = true })
	doc.AddCaptureListener(EventClick, func(e *Event) {
		e.PreventDefault()
		e.StopPropagation()
	})

	_ = send.Click()
	if pageSaw {
		t.Error("page listener should not run after StopPropagation")
	}
	if n := len(doc.Submitted()); n != 0 {
		t.Errorf("prevented click submitted the form %d times", n)
	}
}

func TestDispatch_SubmitButtonSubmitsForm(t *testing.T) {
	doc := mustParse(t, page)
	_ = mustQuery(t, doc, "#attach").Click()
	if n := len(doc.Submitted()); n != 0 {
		t.Fatalf("type=button submitted the form")
	}
	_ = mustQuery(t, doc, "#send").Click()
	if n := len(doc.Submitted()); n != 1 {
		t.Errorf("submissions = %d, want 1", n)
	}
}

func TestClick_DisabledIgnored(t *testing.T) {
	doc := mustParse(t, `<button id="b" disabled>Send</button>`)
	b := mustQuery(t, doc, "#b")
	fired := false
	b.AddEventListener(EventClick, func(*Event) { fired = true })
	_ = b.Click()
	if fired {
		t.Error("disabled button should not receive clicks")
	}
	b.RemoveAttr("disabled")
	_ = b.Click()
	if !fired {
		t.Error("enabled button should receive clicks")
	}
}

func TestSubmit_NoForm(t *testing.T) {
	doc := mustParse(t, `<textarea id="t"></textarea>`)
	if err := mustQuery(t, doc, "#t").Submit(); err != ErrNoForm {
		t.Errorf("Submit() error = %v, want ErrNoForm", err)
	}
}

func TestMutations(t *testing.T) {
	doc := mustParse(t, page)
	n := 0
	doc.OnMutation(func() { n++ })

	doc.Remove(mustQuery(t, doc, "#prompt"))
	added, err := doc.AppendHTML(mustQuery(t, doc, "#chat"), `<textarea id="prompt2"></textarea>`)
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 1 || added[0].Tag() != "textarea" {
		t.Fatalf("AppendHTML returned %v", added)
	}
	if err := mustQuery(t, doc, ".editor").SetInnerHTML("<p>new</p>"); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("mutation callbacks = %d, want 3", n)
	}
	if el, _ := doc.Query("#prompt"); el != nil {
		t.Error("removed element still queryable")
	}
	if !added[0].Visible() {
		t.Error("appended element should be visible")
	}
}
