package locator

import (
	"strings"

	"github.com/gzhole/promptguard/internal/dom"
)

// Candidate is the observable surface of a button that the send-control
// heuristic looks at.
type Candidate struct {
	AriaLabel string
	Text      string
	Class     string
	Submit    bool
	Icon      bool
}

// CandidateOf reads a candidate from a live element.
func CandidateOf(el dom.Element) Candidate {
	aria, _ := el.Attr("aria-label")
	class, _ := el.Attr("class")
	typ, _ := el.Attr("type")
	icons, _ := el.QueryAll("svg")
	return Candidate{
		AriaLabel: aria,
		Text:      strings.TrimSpace(el.Text()),
		Class:     class,
		Submit:    strings.EqualFold(typ, "submit"),
		Icon:      len(icons) > 0,
	}
}

// Score rates how send-like a candidate looks. Zero means not a send
// control. The icon bonus only applies on top of another signal.
func Score(c Candidate) int {
	aria := strings.ToLower(c.AriaLabel)
	text := strings.ToLower(c.Text)

	score := 0
	if strings.Contains(aria, "send") {
		score += 10
	}
	if strings.Contains(text, "send") {
		score += 10
	}
	if strings.Contains(c.AriaLabel, "送信") {
		score += 10
	}
	if strings.Contains(c.Text, "送信") {
		score += 10
	}
	if c.Submit {
		score += 8
	}
	if strings.Contains(strings.ToLower(c.Class), "send") {
		score += 5
	}
	if strings.Contains(c.AriaLabel, "Message") {
		score += 3
	}
	if c.Icon && score > 0 {
		score += 2
	}
	return score
}

var (
	navigationTerms = []string{"sidebar", "サイドバー", "menu", "メニュー", "navigation", "ナビゲーション"}
	cancelTerms     = []string{"cancel", "キャンセル"}
)

// Excluded reports whether the candidate's label or text names a
// navigation control. withCancel also excludes cancel buttons.
func Excluded(c Candidate, withCancel bool) bool {
	hay := strings.ToLower(c.AriaLabel + "\n" + c.Text)
	if containsAny(hay, navigationTerms) {
		return true
	}
	return withCancel && containsAny(hay, cancelTerms)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
