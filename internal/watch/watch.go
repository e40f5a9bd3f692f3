// Package watch turns bursts of page mutation notifications into single,
// debounced guard checks.
package watch

import (
	"context"
	"log/slog"
	"time"
)

// Config configures a Watcher.
type Config struct {
	// Window is the quiet period after the last notification before a
	// check runs. Default: 2s.
	Window time.Duration
	// Interval runs a check periodically regardless of notifications.
	// Zero disables it.
	Interval time.Duration
	// Check is called from Run's goroutine, never concurrently.
	Check  func(ctx context.Context)
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Window <= 0 {
		c.Window = 2 * time.Second
	}
	if c.Check == nil {
		c.Check = func(context.Context) {}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Watcher debounces notifications into checks.
type Watcher struct {
	cfg    Config
	notify chan struct{}
}

func New(cfg Config) *Watcher {
	cfg.defaults()
	return &Watcher{cfg: cfg, notify: make(chan struct{}, 1)}
}

// Notify records that the page changed. It never blocks.
func (w *Watcher) Notify() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Run processes notifications until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
		tickCh  <-chan time.Time
	)
	if w.cfg.Interval > 0 {
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		tickCh = ticker.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.notify:
			// (Re)start the quiet window.
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.cfg.Window)
			timerCh = timer.C

		case <-timerCh:
			timer, timerCh = nil, nil
			w.cfg.Logger.Debug("watch: mutations settled, checking")
			w.cfg.Check(ctx)

		case <-tickCh:
			w.cfg.Check(ctx)
		}
	}
}
