package htmldom

import "github.com/gzhole/promptguard/internal/dom"

// Event types dispatched by Element.Click, PressKey and Submit.
const (
	EventKeyDown = "keydown"
	EventClick   = "click"
	EventSubmit  = "submit"
)

// Event is a dispatched DOM event.
type Event struct {
	Type      string
	Target    *Element
	Key       string
	Shift     bool
	Composing bool

	prevented bool
	stopped   bool
}

// PreventDefault cancels the default action.
func (e *Event) PreventDefault() { e.prevented = true }

// StopPropagation stops delivery to the remaining listeners.
func (e *Event) StopPropagation() { e.stopped = true }

func (e *Event) DefaultPrevented() bool { return e.prevented }

// TargetElement returns the target as a dom.Element, nil when unset.
func (e *Event) TargetElement() dom.Element {
	if e.Target == nil {
		return nil
	}
	return e.Target
}

// Dispatch delivers ev: document capture listeners first, then listeners
// on the target and each ancestor, then default actions unless
// prevented. It reports whether the default action ran.
func (d *Document) Dispatch(ev *Event) bool {
	d.mu.RLock()
	capture := append([]Listener(nil), d.capture[ev.Type]...)
	var path [][]Listener
	for n := ev.Target.node; n != nil; n = n.Parent {
		if ls := d.bubble[n][ev.Type]; len(ls) > 0 {
			path = append(path, append([]Listener(nil), ls...))
		}
	}
	defaults := append([]Listener(nil), d.defaults[ev.Type]...)
	d.mu.RUnlock()

	for _, fn := range capture {
		fn(ev)
		if ev.stopped {
			break
		}
	}
	for _, ls := range path {
		if ev.stopped {
			break
		}
		for _, fn := range ls {
			fn(ev)
		}
	}
	if ev.prevented {
		return false
	}

	d.nativeDefault(ev)
	for _, fn := range defaults {
		fn(ev)
	}
	return true
}

// nativeDefault is the browser's own behaviour: a submit button click
// submits its form, and a submit event records the submission.
func (d *Document) nativeDefault(ev *Event) {
	switch ev.Type {
	case EventClick:
		btn := ev.Target.closest("button")
		if btn == nil || !btn.submitsForm() {
			return
		}
		if form := btn.closest("form"); form != nil {
			d.Dispatch(&Event{Type: EventSubmit, Target: form})
		}
	case EventSubmit:
		d.mu.Lock()
		d.submitted = append(d.submitted, ev.Target)
		d.mu.Unlock()
	}
}
