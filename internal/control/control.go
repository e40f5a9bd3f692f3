// Package control serves the local HTTP API used to inspect and toggle the
// warning snooze while a watch session is running.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gzhole/promptguard/internal/site"
	"github.com/gzhole/promptguard/internal/snooze"
)

// Tab is the status of one guarded page.
type Tab struct {
	ID    string `json:"id"`
	Site  string `json:"site"`
	URL   string `json:"url"`
	Phase string `json:"phase"`
	Bound bool   `json:"bound"`
}

// Status is the body of GET /status.
type Status struct {
	Snoozed       bool       `json:"snoozed"`
	DisabledUntil *time.Time `json:"disabled_until,omitempty"`
	Tabs          []Tab      `json:"tabs,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// SnoozeRequest is the optional body of POST /snooze.
type SnoozeRequest struct {
	// Duration is a Go duration string such as "8h" or "30m".
	Duration string `json:"duration"`
}

type Config struct {
	Store     snooze.Store
	Sites     *site.Registry
	SnoozeFor time.Duration
	// Tabs lists the guarded pages. Optional.
	Tabs   func() []Tab
	Now    func() time.Time
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.SnoozeFor <= 0 {
		c.SnoozeFor = snooze.DefaultDuration
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Sites == nil {
		c.Sites = site.Builtin()
	}
}

type Server struct {
	cfg Config
}

func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("control: store is required")
	}
	cfg.defaults()
	return &Server{cfg: cfg}, nil
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", s.handleStatus)
	r.Post("/snooze", s.handleSnooze)
	r.Delete("/snooze", s.handleResume)
	r.Get("/sites", s.handleSites)
	r.Get("/sites/{id}", s.handleSite)
	return r
}

// ListenAndServe serves the API on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.cfg.Logger.Info("control: listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("control: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) status(ctx context.Context) Status {
	var st Status
	rec, active, err := snooze.Lookup(ctx, s.cfg.Store, s.cfg.Now())
	if err != nil {
		// Unreadable storage means not snoozed.
		s.cfg.Logger.Warn("control: snooze lookup failed", "error", err)
		st.Error = err.Error()
	}
	if active {
		until := rec.Until().UTC()
		st.Snoozed = true
		st.DisabledUntil = &until
	}
	if s.cfg.Tabs != nil {
		st.Tabs = s.cfg.Tabs()
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	d := s.cfg.SnoozeFor
	if r.ContentLength != 0 {
		var req SnoozeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		if req.Duration != "" {
			parsed, err := time.ParseDuration(req.Duration)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid duration %q", req.Duration))
				return
			}
			d = parsed
		}
	}

	rec, err := snooze.Snooze(r.Context(), s.cfg.Store, s.cfg.Now(), d)
	if err != nil {
		s.cfg.Logger.Error("control: snooze failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.cfg.Logger.Info("control: warnings snoozed", "until", rec.Until().UTC())
	writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.Clear(r.Context()); err != nil {
		s.cfg.Logger.Error("control: resume failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.cfg.Logger.Info("control: warnings resumed")
	writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *Server) handleSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Sites.Profiles())
}

func (s *Server) handleSite(w http.ResponseWriter, r *http.Request) {
	p, ok := s.cfg.Sites.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, site.ErrUnknownSite)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
