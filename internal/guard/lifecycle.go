package guard

import (
	"context"
	"fmt"

	"github.com/gzhole/promptguard/internal/dom"
)

// Check is fed by the mutation watcher. It counts consecutive checks
// without a locatable input and reinitializes once per absence when the
// count reaches AbsentChecks, or at once when the input has been replaced
// by a new element. Otherwise it refreshes the host binding, since send
// controls come and go as the user types.
func (g *Guard) Check(ctx context.Context) {
	input, err := g.cfg.Locator.FindInput(g.cfg.Document)
	if err != nil {
		g.mu.Lock()
		g.absent++
		n, handled := g.absent, g.absentHandled
		g.mu.Unlock()
		g.log.Debug("guard: input absent", "checks", n)
		if n < g.cfg.AbsentChecks || handled {
			return
		}
		ran, err := g.reinitialize(ctx)
		if err != nil {
			g.log.Debug("guard: reinitialize found no input", "error", err)
		}
		if ran {
			g.mu.Lock()
			g.absentHandled = true
			g.mu.Unlock()
		}
		return
	}

	g.mu.Lock()
	g.absent = 0
	g.absentHandled = false
	replaced := g.input != nil && !dom.Same(g.input, input)
	if !replaced {
		g.input = input
	}
	g.mu.Unlock()

	if replaced {
		if err := g.Reinitialize(ctx); err != nil {
			g.log.Warn("guard: reinitialize failed", "error", err)
		}
		return
	}
	g.bind(ctx, input)
}

// Reinitialize resets the state machine to Idle, forgets the last
// classified text, and re-runs element discovery. A prompt still open
// from before is cancelled and its resolution is no longer applied; new
// submissions are suppressed until it has returned. Concurrent calls
// collapse into the one already running.
func (g *Guard) Reinitialize(ctx context.Context) error {
	_, err := g.reinitialize(ctx)
	return err
}

// reinitialize reports whether it ran or lost to a concurrent call.
func (g *Guard) reinitialize(ctx context.Context) (bool, error) {
	if !g.reinit.TryLock() {
		return false, nil
	}
	defer g.reinit.Unlock()

	g.mu.Lock()
	if g.st.stopPrompt != nil {
		g.st.stopPrompt()
		g.st.stopPrompt = nil
	}
	g.st.epoch++
	epoch := g.st.epoch
	g.st.phase = PhaseIdle
	g.st.inProgress = false
	g.st.pending = nil
	g.st.lastText = ""
	g.input = nil
	g.mu.Unlock()

	g.log.Info("guard: reinitializing", "epoch", epoch)
	return true, g.discover(ctx)
}

// discover locates the input and binds the host to it.
func (g *Guard) discover(ctx context.Context) error {
	input, err := g.cfg.Locator.FindInput(g.cfg.Document)
	if err != nil {
		return fmt.Errorf("guard: discover input: %w", err)
	}
	g.mu.Lock()
	g.input = input
	g.mu.Unlock()
	g.bind(ctx, input)
	return nil
}

func (g *Guard) bind(ctx context.Context, input dom.Element) {
	if g.cfg.Binder == nil {
		return
	}
	send, _ := g.cfg.Locator.FindSendControlNear(g.cfg.Document, input)
	if err := g.cfg.Binder.Bind(ctx, input, send); err != nil {
		g.log.Warn("guard: bind failed", "error", err)
	}
}
