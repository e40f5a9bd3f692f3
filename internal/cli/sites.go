package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/promptguard/internal/site"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the chat sites PromptGuard guards",
	Long: `List the built-in site profiles merged with the profiles in the sites
directory (default: ~/.promptguard/sites.d). A file there with a "sites:"
list adds new profiles or replaces built-in ones by id.`,
	RunE: sitesCommand,
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}

func sitesCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := site.Load(cfg.SitesDir)
	if err != nil {
		return fmt.Errorf("failed to load site profiles: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, p := range reg.Profiles() {
		fmt.Fprintf(out, "%-10s %s\n", p.ID, p.Name)
		fmt.Fprintf(out, "     Domains: %s\n", strings.Join(p.Domains, ", "))
		fmt.Fprintf(out, "     Input:   %s\n", joinLocators(p.Input))
		fmt.Fprintf(out, "     Send:    %s\n", joinLocators(p.Send))
		var flags []string
		if p.KeySubmit {
			flags = append(flags, "enter-submits")
		}
		if p.SpecialInterception {
			flags = append(flags, "special-interception")
		}
		if len(flags) > 0 {
			fmt.Fprintf(out, "     Flags:   %s\n", strings.Join(flags, ", "))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func joinLocators(ls []site.Locator) string {
	if len(ls) == 0 {
		return "(fallbacks only)"
	}
	s := make([]string, len(ls))
	for i, l := range ls {
		s[i] = string(l)
	}
	return strings.Join(s, " | ")
}
