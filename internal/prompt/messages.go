package prompt

import (
	"fmt"
	"time"

	"github.com/gzhole/promptguard/internal/classifier"
)

// Messages is the user-facing copy of the confirmation prompt.
type Messages struct {
	Title    string
	Lead     string
	Found    string
	Matches  string
	Question string
	Continue string
	Snooze   string
	Cancel   string
}

// For returns the copy for a locale, falling back to English. snoozeFor
// is shown on the snooze option.
func For(locale string, snoozeFor time.Duration) Messages {
	hours := int(snoozeFor.Hours())
	if locale == classifier.LocaleJapanese {
		return Messages{
			Title:    "個人情報検知警告",
			Lead:     "プロンプトに個人情報の可能性がある内容が検出されました",
			Found:    "検出内容",
			Matches:  "検出されたテキスト",
			Question: "送信して問題がないかご確認ください。",
			Continue: "はい、送信します",
			Snooze:   fmt.Sprintf("%d時間表示を止める", hours),
			Cancel:   "キャンセル",
		}
	}
	return Messages{
		Title:    "Sensitive information detected",
		Lead:     "Your message appears to contain personal or confidential information",
		Found:    "Detected",
		Matches:  "Matched text",
		Question: "Please confirm it is safe to send.",
		Continue: "Yes, send it",
		Snooze:   fmt.Sprintf("Stop warning me for %d hours", hours),
		Cancel:   "Cancel",
	}
}
