// Package redact masks sensitive substrings before text reaches the audit
// log or the terminal.
package redact

import (
	"regexp"
	"sort"
	"strings"

	"github.com/gzhole/promptguard/internal/classifier"
)

// Credentials the classifier does not cover but that must never be logged.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`),
	regexp.MustCompile(`sk_live_[0-9a-zA-Z]{24}`),
	regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),
}

const redactedPlaceholder = "[REDACTED]"

// Redact masks every classifier match and known credential shape in input.
func Redact(input string) string {
	return Detections(input, classifier.Classify(input))
}

// Detections masks the given detections' matches in input, then the
// credential patterns. Each match becomes "[REDACTED:<category>]".
func Detections(input string, detections []classifier.Detection) string {
	type repl struct {
		match string
		with  string
	}
	var repls []repl
	for _, d := range detections {
		for _, m := range d.Matches {
			repls = append(repls, repl{m, "[REDACTED:" + string(d.Category) + "]"})
		}
	}
	// Longest first so a match containing another is masked whole.
	sort.SliceStable(repls, func(i, j int) bool {
		return len(repls[i].match) > len(repls[j].match)
	})

	result := input
	for _, r := range repls {
		result = strings.ReplaceAll(result, r.match, r.with)
	}
	for _, pattern := range credentialPatterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// Matches returns the detections with each match masked down to its
// first and last two characters, for showing the user what was found
// without echoing it in full.
func Matches(detections []classifier.Detection) []classifier.Detection {
	out := make([]classifier.Detection, len(detections))
	for i, d := range detections {
		masked := make([]string, len(d.Matches))
		for j, m := range d.Matches {
			masked[j] = Preview(m)
		}
		out[i] = classifier.Detection{Category: d.Category, Matches: masked, Label: d.Label}
	}
	return out
}

// Preview keeps the first and last two runes of s.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= 6 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:2]) + strings.Repeat("*", len(r)-4) + string(r[len(r)-2:])
}
