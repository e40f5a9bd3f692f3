package locator

import (
	"errors"
	"testing"

	"github.com/gzhole/promptguard/internal/dom"
	"github.com/gzhole/promptguard/internal/dom/htmldom"
	"github.com/gzhole/promptguard/internal/site"
)

var testProfile = site.Profile{
	ID:      "test",
	Domains: []string{"chat.test"},
	Input:   []site.Locator{"#prompt", "textarea.main"},
	Send:    []site.Locator{`[data-testid="send-button"]`, `button[aria-label*="Send"]`},
}

func parse(t *testing.T, s string) *htmldom.Document {
	t.Helper()
	doc, err := htmldom.ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func idOf(el dom.Element) string {
	if el == nil {
		return ""
	}
	id, _ := el.Attr("id")
	return id
}

func TestFindInput_PriorityOrder(t *testing.T) {
	doc := parse(t, `<textarea class="main" id="second"></textarea><div id="prompt" contenteditable="true"></div>`)
	el, err := New(testProfile, Options{}).FindInput(doc)
	if err != nil {
		t.Fatal(err)
	}
	if idOf(el) != "prompt" {
		t.Errorf("FindInput = %s, want prompt (first locator wins over document order)", idOf(el))
	}
}

func TestFindInput_SkipsInvisible(t *testing.T) {
	doc := parse(t, `<div style="display:none"><div id="prompt"></div></div><textarea class="main" id="visible"></textarea>`)
	el, err := New(testProfile, Options{}).FindInput(doc)
	if err != nil {
		t.Fatal(err)
	}
	if idOf(el) != "visible" {
		t.Errorf("FindInput = %s, want visible", idOf(el))
	}
}

func TestFindInput_EditableFallback(t *testing.T) {
	doc := parse(t, `
<div id="tiny" contenteditable="true" style="width:10px;height:10px"></div>
<div id="big" contenteditable="true" style="width:300px;height:40px"></div>
<textarea id="ta"></textarea>`)
	el, err := New(testProfile, Options{}).FindInput(doc)
	if err != nil {
		t.Fatal(err)
	}
	if idOf(el) != "big" {
		t.Errorf("FindInput = %s, want big", idOf(el))
	}
}

func TestFindInput_UnknownSizePasses(t *testing.T) {
	doc := parse(t, `<div id="ed" contenteditable="true"></div><textarea id="ta"></textarea>`)
	el, _ := New(testProfile, Options{}).FindInput(doc)
	if idOf(el) != "ed" {
		t.Errorf("FindInput = %s, want ed", idOf(el))
	}
}

func TestFindInput_TextareaFallback(t *testing.T) {
	doc := parse(t, `<div id="tiny" contenteditable="true" style="width:10px;height:10px"></div><textarea id="ta"></textarea>`)
	el, _ := New(testProfile, Options{}).FindInput(doc)
	if idOf(el) != "ta" {
		t.Errorf("FindInput = %s, want ta", idOf(el))
	}
}

func TestFindInput_NotFound(t *testing.T) {
	doc := parse(t, `<p>nothing here</p>`)
	if _, err := New(testProfile, Options{}).FindInput(doc); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFindInput_BadSelectorSkipped(t *testing.T) {
	p := testProfile
	p.Input = []site.Locator{"div[[[", "#prompt"}
	doc := parse(t, `<textarea id="prompt"></textarea>`)
	el, err := New(p, Options{}).FindInput(doc)
	if err != nil || idOf(el) != "prompt" {
		t.Errorf("FindInput = %s, %v", idOf(el), err)
	}
}

func TestFindSendControl_ProfileLocators(t *testing.T) {
	doc := parse(t, `
<textarea id="prompt"></textarea>
<button id="off" data-testid="send-button" disabled></button>
<button id="side" aria-label="Send to sidebar"></button>
<button id="send" aria-label="Send prompt"></button>`)
	el, err := New(testProfile, Options{}).FindSendControl(doc)
	if err != nil {
		t.Fatal(err)
	}
	if idOf(el) != "send" {
		t.Errorf("FindSendControl = %s, want send", idOf(el))
	}
}

func TestFindSendControl_AncestorFallback(t *testing.T) {
	doc := parse(t, `
<button id="far" aria-label="send feedback">x</button>
<div id="composer">
  <div><textarea id="prompt"></textarea></div>
  <button id="attach" type="button"><svg></svg></button>
  <button id="go" class="btn-send"><svg></svg></button>
</div>`)
	p := testProfile
	p.Send = nil
	el, err := New(p, Options{}).FindSendControl(doc)
	if err != nil {
		t.Fatal(err)
	}
	if idOf(el) != "go" {
		t.Errorf("FindSendControl = %s, want go (nearest level wins)", idOf(el))
	}
}

func TestFindSendControl_PageScanBestScore(t *testing.T) {
	doc := parse(t, `
<button id="cancel" aria-label="Cancel send">x</button>
<button id="menu" aria-label="Open menu">Send</button>
<button id="weak" type="submit"></button>
<button id="strong" aria-label="送信">送信</button>`)
	p := testProfile
	p.Send = nil
	el, err := New(p, Options{}).FindSendControl(doc)
	if err != nil {
		t.Fatal(err)
	}
	if idOf(el) != "strong" {
		t.Errorf("FindSendControl = %s, want strong", idOf(el))
	}
}

func TestFindSendControl_TieKeepsFirst(t *testing.T) {
	doc := parse(t, `<button id="a">Send</button><button id="b">Send</button>`)
	p := testProfile
	p.Send = nil
	el, _ := New(p, Options{}).FindSendControl(doc)
	if idOf(el) != "a" {
		t.Errorf("FindSendControl = %s, want a", idOf(el))
	}
}

func TestFindSendControl_NoScore(t *testing.T) {
	doc := parse(t, `<button id="a"><svg></svg></button><button>Help</button>`)
	p := testProfile
	p.Send = nil
	if _, err := New(p, Options{}).FindSendControl(doc); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		c    Candidate
		want int
	}{
		{"empty", Candidate{}, 0},
		{"icon only", Candidate{Icon: true}, 0},
		{"aria send", Candidate{AriaLabel: "Send"}, 10},
		{"aria and text send", Candidate{AriaLabel: "send", Text: "SEND"}, 20},
		{"japanese", Candidate{AriaLabel: "送信", Text: "送信する"}, 20},
		{"submit", Candidate{Submit: true}, 8},
		{"class", Candidate{Class: "SendButton"}, 5},
		{"message", Candidate{AriaLabel: "Message"}, 3},
		{"full", Candidate{AriaLabel: "Send Message", Submit: true, Class: "send", Icon: true}, 10 + 8 + 5 + 3 + 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.c); got != tt.want {
				t.Errorf("Score(%+v) = %d, want %d", tt.c, got, tt.want)
			}
		})
	}
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		c          Candidate
		withCancel bool
		want       bool
	}{
		{Candidate{AriaLabel: "Close Sidebar"}, false, true},
		{Candidate{Text: "サイドバーを閉じる"}, false, true},
		{Candidate{AriaLabel: "メニュー"}, false, true},
		{Candidate{AriaLabel: "Main navigation"}, false, true},
		{Candidate{Text: "Cancel"}, false, false},
		{Candidate{Text: "Cancel"}, true, true},
		{Candidate{Text: "キャンセル"}, true, true},
		{Candidate{AriaLabel: "Send"}, true, false},
	}
	for _, tt := range tests {
		if got := Excluded(tt.c, tt.withCancel); got != tt.want {
			t.Errorf("Excluded(%+v, %v) = %v, want %v", tt.c, tt.withCancel, got, tt.want)
		}
	}
}

func TestExtractText(t *testing.T) {
	doc := parse(t, `
<textarea id="ta">typed</textarea>
<div id="pm" contenteditable="true"><p>line one</p><p data-placeholder="Reply...">   </p><p>line two</p></div>
<div id="empty" contenteditable="true"><p data-placeholder="Reply..."></p></div>
<div id="plain" contenteditable="true">just text</div>
<span id="span">span text</span>`)
	get := func(sel string) dom.Element {
		el, err := doc.Query(sel)
		if err != nil || el == nil {
			t.Fatalf("Query(%s) failed", sel)
		}
		return el
	}

	tests := []struct {
		sel  string
		want string
	}{
		{"#ta", "typed"},
		{"#pm", "line one\nline two"},
		{"#empty", ""},
		{"#plain", "just text"},
		{"#span", "span text"},
	}
	for _, tt := range tests {
		if got := ExtractText(get(tt.sel)); got != tt.want {
			t.Errorf("ExtractText(%s) = %q, want %q", tt.sel, got, tt.want)
		}
	}
	if ExtractText(nil) != "" {
		t.Error("ExtractText(nil) should be empty")
	}
}
