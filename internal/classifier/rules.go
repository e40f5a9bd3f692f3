package classifier

import (
	"time"

	"github.com/dlclark/regexp2"
)

// matchTimeout bounds a single rule evaluation. Rules are linear in
// practice; the limit only protects against pathological input.
const matchTimeout = 250 * time.Millisecond

type rule struct {
	category Category
	pattern  *regexp2.Regexp
	labels   map[string]string
}

// Digit classes are spelled [0-9] because \d is Unicode-aware in regexp2.
var defaultRules = []rule{
	{
		category: CategoryEmail,
		// example.com is the documented placeholder domain and never flags.
		pattern: compile(`[a-zA-Z0-9._%+-]+@(?!example\.com\b)[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		labels: map[string]string{
			LocaleEnglish:  "Email address",
			LocaleJapanese: "メールアドレス",
		},
	},
	{
		category: CategoryPhoneNumber,
		pattern: compile(`(?:0[789]0-[0-9]{4}-[0-9]{4}` +
			`|0[0-9]{1,4}-[0-9]{1,4}-[0-9]{4}(?![0-9])` +
			`|(?<![0-9])0[1-9][0-9]{8,9}(?![0-9]))`),
		labels: map[string]string{
			LocaleEnglish:  "Phone number",
			LocaleJapanese: "電話番号",
		},
	},
	{
		category: CategoryCreditCard,
		// Visa, MasterCard, Amex, Diners Club, Discover.
		pattern: compile(`(?:4[0-9]{12}(?:[0-9]{3})?` +
			`|5[1-5][0-9]{14}` +
			`|3[47][0-9]{13}` +
			`|3[0-9]{13}` +
			`|6(?:011|5[0-9]{2})[0-9]{12})`),
		labels: map[string]string{
			LocaleEnglish:  "Credit card number",
			LocaleJapanese: "クレジットカード番号",
		},
	},
	{
		category: CategoryPassportNumber,
		pattern:  compile(`[A-Z]{2}[0-9]{7}`),
		labels: map[string]string{
			LocaleEnglish:  "Passport number",
			LocaleJapanese: "パスポート番号",
		},
	},
	{
		category: CategoryNationalID,
		// Exactly twelve digits, never a slice of a longer digit run.
		pattern: compile(`(?<![0-9])[1-9][0-9]{11}(?![0-9])`),
		labels: map[string]string{
			LocaleEnglish:  "National ID number",
			LocaleJapanese: "マイナンバー",
		},
	},
	{
		category: CategoryCloudAccessKey,
		pattern:  compile(`AKIA[0-9A-Z]{16}`),
		labels: map[string]string{
			LocaleEnglish:  "Cloud access key",
			LocaleJapanese: "AWSアクセスキー",
		},
	},
}

func compile(expr string) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, regexp2.None)
	re.MatchTimeout = matchTimeout
	return re
}

// findAll returns every non-overlapping match of r in text, left to right.
// A timeout or engine error ends the scan and keeps what was found.
func (r rule) findAll(text string) []string {
	var matches []string
	m, err := r.pattern.FindStringMatch(text)
	for err == nil && m != nil {
		matches = append(matches, m.String())
		m, err = r.pattern.FindNextMatch(m)
	}
	return matches
}
