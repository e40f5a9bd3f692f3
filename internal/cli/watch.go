package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gzhole/promptguard/internal/browser"
	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/control"
	"github.com/gzhole/promptguard/internal/site"
)

var (
	watchRemote  string
	watchHeadful bool
	watchListen  string
	watchProfile string
)

var watchCmd = &cobra.Command{
	Use:   "watch [url...]",
	Short: "Guard AI chat tabs in Chrome",
	Long: `Launches Chrome (or attaches to one started with --remote-debugging-port)
and guards every tab on a supported chat site. Sending a message that
contains sensitive data is stopped and a confirmation dialog is shown in
the page. While running, a local control API serves /status and /snooze.

  promptguard watch https://chatgpt.com/
  promptguard watch --remote ws://127.0.0.1:9222/devtools/browser/<id>`,
	RunE: watchCommand,
}

func init() {
	watchCmd.Flags().StringVar(&watchRemote, "remote", "", "DevTools WebSocket URL of a running Chrome")
	watchCmd.Flags().BoolVar(&watchHeadful, "headful", false, "Show the launched browser window")
	watchCmd.Flags().StringVar(&watchListen, "listen", "", "Control API address (default from config; 'off' disables)")
	watchCmd.Flags().StringVar(&watchProfile, "user-data-dir", "", "Chrome profile directory (default: <config-dir>/chrome)")
	rootCmd.AddCommand(watchCmd)
}

func watchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := slog.Default()

	if watchRemote != "" {
		cfg.Browser.RemoteURL = watchRemote
	}
	if cmd.Flags().Changed("headful") {
		cfg.Browser.Headful = watchHeadful
	}
	listen := cfg.Control.Listen
	if watchListen == "off" {
		listen = ""
	} else if watchListen != "" {
		listen = watchListen
	}
	userDataDir := watchProfile
	if userDataDir == "" && cfg.Browser.RemoteURL == "" {
		userDataDir = filepath.Join(cfg.ConfigDir, "chrome")
	}

	reg, err := site.Load(cfg.SitesDir)
	if err != nil {
		return fmt.Errorf("failed to load site profiles: %w", err)
	}
	store, closeStore, err := openSnoozeStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := browser.NewManager(browser.Config{
		RemoteURL:   cfg.Browser.RemoteURL,
		Headful:     cfg.Browser.Headful,
		Stealth:     cfg.Browser.Stealth,
		UserDataDir: userDataDir,
		Logger:      log,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	session := browser.SessionConfig{
		Classifier:   classifier.New(classifier.WithLocale(cfg.Locale)),
		Snooze:       store,
		SnoozeFor:    cfg.SnoozeFor,
		Locale:       cfg.Locale,
		ShowMatches:  cfg.ShowMatches,
		SettleWindow: cfg.Browser.SettleWindow,
		SettleDelay:  cfg.Browser.SettleDelay,
		PollInterval: cfg.Browser.PollInterval,
		Logger:       log,
	}
	if lg := openAuditLog(cfg, "watch"); lg != nil {
		defer lg.Close()
		session.Auditor = lg
	}
	host := browser.NewHost(browser.HostConfig{
		Manager: mgr,
		Sites:   reg,
		Session: session,
		Logger:  log,
	})

	for _, u := range args {
		if _, err := reg.MatchURL(u); err != nil {
			log.Warn("watch: not a supported chat site, opening anyway", "url", u)
		}
		if _, err := mgr.Open(ctx, u); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return host.Run(gctx) })
	if listen != "" {
		srv, err := control.New(control.Config{
			Store:     store,
			Sites:     reg,
			SnoozeFor: cfg.SnoozeFor,
			Tabs:      host.Tabs,
			Logger:    log,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.ListenAndServe(gctx, listen) })
	}

	log.Info("watch: guarding chat tabs", "sites", len(reg.Profiles()), "control", listen)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("watch: stopped")
	return nil
}
