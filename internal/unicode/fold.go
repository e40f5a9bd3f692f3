// Package unicode folds prompt text into the plain-ASCII shapes the
// classifier rules are written for.
package unicode

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Hidden describes an invisible or direction-altering rune found in text.
type Hidden struct {
	Category  string // "zero-width", "bidi-override", "tag-char"
	Position  int    // byte offset in the input
	Codepoint string // e.g. "U+200B"
}

// Fold removes invisible formatting runes, folds full-width ASCII
// (０９０ → 090, ＡＫＩＡ → AKIA) and maps dash look-alikes to '-'.
func Fold(input string) string {
	if isPlainASCII(input) {
		return input
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if hiddenCategory(r) != "" {
			continue
		}
		if isDashLike(r) {
			b.WriteByte('-')
			continue
		}
		b.WriteRune(r)
	}
	return width.Fold.String(b.String())
}

// FindHidden reports every invisible rune in input.
func FindHidden(input string) []Hidden {
	var found []Hidden
	for i, r := range input {
		if cat := hiddenCategory(r); cat != "" {
			found = append(found, Hidden{
				Category:  cat,
				Position:  i,
				Codepoint: fmt.Sprintf("U+%04X", r),
			})
		}
	}
	return found
}

func hiddenCategory(r rune) string {
	switch {
	case isZeroWidth(r):
		return "zero-width"
	case isBidiOverride(r):
		return "bidi-override"
	case isTagCharacter(r):
		return "tag-char"
	}
	return ""
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', // ZERO WIDTH SPACE
		'\u200C', // ZERO WIDTH NON-JOINER
		'\u200D', // ZERO WIDTH JOINER
		'\uFEFF', // ZERO WIDTH NO-BREAK SPACE (BOM)
		'\u2060', // WORD JOINER
		'\u180E', // MONGOLIAN VOWEL SEPARATOR
		'\u200E', // LEFT-TO-RIGHT MARK
		'\u200F', // RIGHT-TO-LEFT MARK
		'\u00AD': // SOFT HYPHEN
		return true
	}
	return false
}

func isBidiOverride(r rune) bool {
	switch r {
	case '\u202A', '\u202B', '\u202C', '\u202D', '\u202E',
		'\u2066', '\u2067', '\u2068', '\u2069':
		return true
	}
	return false
}

func isTagCharacter(r rune) bool {
	return r >= 0xE0001 && r <= 0xE007F
}

// isDashLike covers the hyphen variants IMEs and word processors put into
// phone numbers. U+FF0D is left to width.Fold.
func isDashLike(r rune) bool {
	switch r {
	case '\u2010', // HYPHEN
		'\u2011', // NON-BREAKING HYPHEN
		'\u2012', // FIGURE DASH
		'\u2013', // EN DASH
		'\u2014', // EM DASH
		'\u2212', // MINUS SIGN
		'\u30FC', // KATAKANA-HIRAGANA PROLONGED SOUND MARK
		'\uFF70': // HALFWIDTH KATAKANA PROLONGED SOUND MARK
		return true
	}
	return false
}

func isPlainASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
