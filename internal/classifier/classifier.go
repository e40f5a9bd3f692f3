package classifier

import (
	"strings"

	"github.com/gzhole/promptguard/internal/unicode"
)

// Classifier applies the category rules to text. The zero value is not
// usable; construct one with New.
type Classifier struct {
	rules  []rule
	locale string
	fold   bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLocale selects the label language ("en" or "ja").
func WithLocale(locale string) Option {
	return func(c *Classifier) {
		if locale != "" {
			c.locale = locale
		}
	}
}

// WithFold makes the classifier fold the text with unicode.Fold before
// matching, so full-width digits and invisible separators cannot hide a
// match. Reported matches are then substrings of the folded text.
func WithFold(enabled bool) Option {
	return func(c *Classifier) { c.fold = enabled }
}

// New returns a classifier carrying every built-in category rule.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules:  defaultRules,
		locale: LocaleEnglish,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultClassifier = New()

// Classify runs the default classifier (English labels, no folding).
func Classify(text string) []Detection {
	return defaultClassifier.Classify(text)
}

// Classify returns one Detection per category present in text, in category
// declaration order. Empty and whitespace-only text yields nil. Each rule is
// evaluated on the whole text independently, so one substring can appear
// under several categories.
func (c *Classifier) Classify(text string) []Detection {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.fold {
		text = unicode.Fold(text)
	}

	var detections []Detection
	for _, r := range c.rules {
		matches := r.findAll(text)
		if len(matches) == 0 {
			continue
		}
		detections = append(detections, Detection{
			Category: r.category,
			Matches:  matches,
			Label:    r.category.Label(c.locale),
		})
	}
	return detections
}

// CategoriesOf lists the categories present in detections.
func CategoriesOf(detections []Detection) []Category {
	out := make([]Category, 0, len(detections))
	for _, d := range detections {
		out = append(out, d.Category)
	}
	return out
}
