// Package classifier scans free-form prompt text for sensitive personal and
// corporate data using fixed structural pattern rules.
//
// Classification is a pure function of the input text: the same text always
// yields the same detections, in category declaration order.
package classifier

// Category identifies one kind of sensitive data.
type Category string

const (
	CategoryEmail          Category = "email"
	CategoryPhoneNumber    Category = "phone_number"
	CategoryCreditCard     Category = "credit_card"
	CategoryPassportNumber Category = "passport_number"
	CategoryNationalID     Category = "national_id"
	CategoryCloudAccessKey Category = "cloud_access_key"
)

// Categories returns every category in emission order.
func Categories() []Category {
	out := make([]Category, len(defaultRules))
	for i, r := range defaultRules {
		out[i] = r.category
	}
	return out
}

// Label returns the human-readable label of c for the given locale
// ("en" or "ja"). Unknown locales fall back to English; unknown
// categories return the raw identifier.
func (c Category) Label(locale string) string {
	for _, r := range defaultRules {
		if r.category != c {
			continue
		}
		if l, ok := r.labels[locale]; ok {
			return l
		}
		return r.labels[LocaleEnglish]
	}
	return string(c)
}

// Detection groups every match of one category found in a text.
type Detection struct {
	Category Category `json:"category" yaml:"category"`
	Matches  []string `json:"matches" yaml:"matches"`
	Label    string   `json:"label" yaml:"label"`
}

// Supported label locales.
const (
	LocaleEnglish  = "en"
	LocaleJapanese = "ja"
)
