package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/dom"
	"github.com/gzhole/promptguard/internal/dom/htmldom"
	"github.com/gzhole/promptguard/internal/locator"
	"github.com/gzhole/promptguard/internal/redact"
	"github.com/gzhole/promptguard/internal/site"
)

var (
	locateHTML string
	locateSite string
	locateURL  string
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Run the element locator against a saved chat page",
	Long: `Loads a saved HTML page, finds the message input and send control the
way the browser guard would, and prints what it found together with the
typed text and its detections. Use it to debug a site profile.

  promptguard locate --html chatgpt.html --site chatgpt
  promptguard locate --html page.html --url https://claude.ai/new`,
	RunE: locateCommand,
}

func init() {
	locateCmd.Flags().StringVar(&locateHTML, "html", "", "Saved HTML page ('-' for stdin)")
	locateCmd.Flags().StringVar(&locateSite, "site", "", "Site profile id")
	locateCmd.Flags().StringVar(&locateURL, "url", "", "Page URL, used to pick the site profile")
	_ = locateCmd.MarkFlagRequired("html")
	rootCmd.AddCommand(locateCmd)
}

func locateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := site.Load(cfg.SitesDir)
	if err != nil {
		return fmt.Errorf("failed to load site profiles: %w", err)
	}
	profile, err := pickProfile(reg, locateSite, locateURL)
	if err != nil {
		return err
	}

	var src io.Reader
	if locateHTML == "-" {
		src = cmd.InOrStdin()
	} else {
		f, err := os.Open(locateHTML)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", locateHTML, err)
		}
		defer f.Close()
		src = f
	}
	doc, err := htmldom.Parse(src)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", locateHTML, err)
	}

	report := locatePage(doc, profile, classifier.New(classifier.WithLocale(cfg.Locale)))
	fmt.Fprint(cmd.OutOrStdout(), report)
	return nil
}

func pickProfile(reg *site.Registry, id, rawURL string) (site.Profile, error) {
	switch {
	case id != "":
		p, ok := reg.Get(id)
		if !ok {
			return site.Profile{}, fmt.Errorf("%w: %q", site.ErrUnknownSite, id)
		}
		return p, nil
	case rawURL != "":
		return reg.MatchURL(rawURL)
	}
	return site.Profile{}, fmt.Errorf("pass --site or --url")
}

// locatePage renders the locator's view of doc.
func locatePage(doc dom.Document, profile site.Profile, c *classifier.Classifier) string {
	var b strings.Builder
	loc := locator.New(profile, locator.Options{})

	fmt.Fprintf(&b, "Site:    %s (%s)\n", profile.Name, profile.ID)

	input, err := loc.FindInput(doc)
	if err != nil {
		fmt.Fprintf(&b, "Input:   \xe2\x9d\x8c %v\n", err)
		return b.String()
	}
	fmt.Fprintf(&b, "Input:   \xe2\x9c\x85 %s\n", describe(input))

	if send, err := loc.FindSendControlNear(doc, input); err != nil {
		fmt.Fprintf(&b, "Send:    \xe2\x9d\x8c %v\n", err)
	} else {
		fmt.Fprintf(&b, "Send:    \xe2\x9c\x85 %s\n", describe(send))
	}

	text := locator.ExtractText(input)
	fmt.Fprintf(&b, "Text:    %q\n", text)

	detections := redact.Matches(c.Classify(text))
	if len(detections) == 0 {
		b.WriteString("Detections: none\n")
		return b.String()
	}
	b.WriteString("Detections:\n")
	for _, d := range detections {
		fmt.Fprintf(&b, "  - %s: %s\n", d.Label, strings.Join(d.Matches, ", "))
	}
	return b.String()
}

// describe renders an element as a short start tag.
func describe(el dom.Element) string {
	var attrs []string
	for _, name := range []string{"id", "class", "type", "aria-label", "data-testid", "contenteditable"} {
		if v, ok := el.Attr(name); ok {
			attrs = append(attrs, fmt.Sprintf("%s=%q", name, v))
		}
	}
	sort.Strings(attrs)
	if len(attrs) == 0 {
		return "<" + el.Tag() + ">"
	}
	return "<" + el.Tag() + " " + strings.Join(attrs, " ") + ">"
}
