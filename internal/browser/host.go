package browser

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/gzhole/promptguard/internal/control"
	"github.com/gzhole/promptguard/internal/site"
)

// HostConfig configures a Host.
type HostConfig struct {
	Manager *Manager
	Sites   *site.Registry
	Session SessionConfig
	// Scan is how often the browser's tabs are listed. Default: 2s.
	Scan   time.Duration
	Logger *slog.Logger
}

func (c *HostConfig) defaults() {
	if c.Sites == nil {
		c.Sites = site.Builtin()
	}
	if c.Scan <= 0 {
		c.Scan = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Session.Logger == nil {
		c.Session.Logger = c.Logger
	}
}

type hosted struct {
	session *Session
	siteID  string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Host attaches a Session to every tab on a supported site and releases
// it when the tab closes or navigates away.
type Host struct {
	cfg HostConfig

	mu   sync.Mutex
	tabs map[proto.TargetTargetID]*hosted
}

func NewHost(cfg HostConfig) *Host {
	cfg.defaults()
	return &Host{cfg: cfg, tabs: make(map[proto.TargetTargetID]*hosted)}
}

// Run scans tabs until ctx ends, then releases every session.
func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.Scan)
	defer ticker.Stop()

	h.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			h.releaseAll()
			return nil
		case <-ticker.C:
			h.scan(ctx)
		}
	}
}

func (h *Host) scan(ctx context.Context) {
	log := h.cfg.Logger
	b := h.cfg.Manager.Browser()
	if b == nil {
		return
	}
	pages, err := b.Pages()
	if err != nil {
		log.Warn("browser: list tabs failed", "error", err)
		return
	}

	seen := make(map[proto.TargetTargetID]bool, len(pages))
	for _, page := range pages {
		info, err := page.Info()
		if err != nil {
			continue
		}
		id := page.TargetID
		profile, err := h.cfg.Sites.MatchURL(info.URL)
		if err != nil {
			continue
		}
		seen[id] = true

		h.mu.Lock()
		cur, ok := h.tabs[id]
		h.mu.Unlock()
		if ok && cur.siteID == profile.ID {
			cur.session.setURL(info.URL)
			continue
		}
		if ok {
			h.release(id)
		}

		sctx, cancel := context.WithCancel(ctx)
		s, err := Attach(sctx, page, profile, info.URL, h.cfg.Session)
		if err != nil {
			cancel()
			log.Warn("browser: attach failed", "url", info.URL, "error", err)
			continue
		}
		t := &hosted{session: s, siteID: profile.ID, cancel: cancel, done: make(chan struct{})}
		h.mu.Lock()
		h.tabs[id] = t
		h.mu.Unlock()
		go func() {
			defer close(t.done)
			s.Run(sctx)
		}()
	}

	h.mu.Lock()
	var gone []proto.TargetTargetID
	for id := range h.tabs {
		if !seen[id] {
			gone = append(gone, id)
		}
	}
	h.mu.Unlock()
	for _, id := range gone {
		h.release(id)
	}
}

func (h *Host) release(id proto.TargetTargetID) {
	h.mu.Lock()
	t, ok := h.tabs[id]
	delete(h.tabs, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

func (h *Host) releaseAll() {
	h.mu.Lock()
	ids := make([]proto.TargetTargetID, 0, len(h.tabs))
	for id := range h.tabs {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.release(id)
	}
}

// Tabs reports the guarded tabs for the control API.
func (h *Host) Tabs() []control.Tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]control.Tab, 0, len(h.tabs))
	for id, t := range h.tabs {
		out = append(out, control.Tab{
			ID:    string(id),
			Site:  t.siteID,
			URL:   t.session.URL(),
			Phase: t.session.State().Phase.String(),
			Bound: t.session.Bound(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
