package guard

import (
	"context"
	"time"

	"github.com/gzhole/promptguard/internal/classifier"
	"github.com/gzhole/promptguard/internal/dom"
)

// SignalKind is the channel a submission attempt arrived on.
type SignalKind int

const (
	// SignalKey is a key press in the input.
	SignalKey SignalKind = iota + 1
	// SignalActivate is a click or pointer activation of the send control.
	SignalActivate
	// SignalFormSubmit is a native form submission.
	SignalFormSubmit
)

func (k SignalKind) String() string {
	switch k {
	case SignalKey:
		return "key"
	case SignalActivate:
		return "activate"
	case SignalFormSubmit:
		return "submit"
	}
	return "unknown"
}

// Event is the host's handle on the native action behind a signal.
type Event interface {
	PreventDefault()
	StopPropagation()
}

// Signal is one observed submission attempt.
type Signal struct {
	Kind SignalKind
	// Key, Shift and Composing describe SignalKey. Only Enter without
	// Shift outside IME composition submits.
	Key       string
	Shift     bool
	Composing bool
	// Target is the element the event was dispatched at. nil means the
	// host has already scoped the signal to the guarded elements.
	Target dom.Element
	// Event may be nil when the host cancels natively on its own.
	Event Event
}

// Outcome is what Handle did with a signal.
type Outcome int

const (
	// OutcomeIgnored: not a submission signal, or outside the guarded
	// elements. State is untouched and the native action proceeds.
	OutcomeIgnored Outcome = iota
	// OutcomePassThrough: the guard's own replay.
	OutcomePassThrough
	// OutcomeSuppressed: another arbitration is in progress; the native
	// action was cancelled.
	OutcomeSuppressed
	// OutcomeAllowed: arbitration ended without blocking.
	OutcomeAllowed
	// OutcomeBlocked: sensitive text found; the native action was
	// cancelled and the user is being asked.
	OutcomeBlocked
)

var outcomeNames = map[Outcome]string{
	OutcomeIgnored:     "ignored",
	OutcomePassThrough: "pass_through",
	OutcomeSuppressed:  "suppressed",
	OutcomeAllowed:     "allowed",
	OutcomeBlocked:     "blocked",
}

func (o Outcome) String() string { return outcomeNames[o] }

// Proceeds reports whether the native action should go ahead.
func (o Outcome) Proceeds() bool {
	return o != OutcomeSuppressed && o != OutcomeBlocked
}

// Decision is the user's answer to the confirmation prompt.
type Decision int

const (
	DecisionCancel Decision = iota
	DecisionContinue
	DecisionSnooze
)

func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "continue"
	case DecisionSnooze:
		return "snooze"
	}
	return "cancel"
}

// Prompt asks the user what to do about detections. Show blocks until
// the user answers or ctx ends. The guard never calls Show while a
// previous call is unresolved.
type Prompt interface {
	Show(ctx context.Context, detections []classifier.Detection) (Decision, error)
}

// Binder lets a host mark the elements the guard is watching, so it can
// scope signals before forwarding them. send may be nil.
type Binder interface {
	Bind(ctx context.Context, input, send dom.Element) error
}

// Reason explains an arbitration outcome.
type Reason string

const (
	ReasonNoInput   Reason = "no_input"
	ReasonDuplicate Reason = "duplicate"
	ReasonEmpty     Reason = "empty"
	ReasonSnoozed   Reason = "snoozed"
	ReasonClean     Reason = "clean"
	ReasonFlagged   Reason = "flagged"
	ReasonStale     Reason = "stale"
	ReasonPanic     Reason = "panic"
)

// Report is one audit record: an arbitration or its resolution.
type Report struct {
	ID         string
	Site       string
	Signal     SignalKind
	Outcome    Outcome
	Reason     Reason
	Decision   string
	Categories []classifier.Category
	Text       string
	Error      string
	At         time.Time
}

// Auditor receives reports. Implementations must redact Text.
type Auditor interface {
	Record(Report)
}

// Resolution is passed to Config.OnResolve once a prompt resolves and
// any replay has finished.
type Resolution struct {
	ID       string
	Decision Decision
	// Err is the prompt error, if the prompt failed.
	Err error
	// Replayed is set when the original intent was re-issued
	// successfully.
	Replayed bool
	// Stale is set when a reinitialize happened while the prompt was
	// open; the resolution was then not applied to the page.
	Stale bool
}

// Phase of the arbitration state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseArbitrating
	PhaseAwaitingDecision
)

func (p Phase) String() string {
	switch p {
	case PhaseArbitrating:
		return "arbitrating"
	case PhaseAwaitingDecision:
		return "awaiting_decision"
	}
	return "idle"
}

// State is a snapshot of the arbitration state.
type State struct {
	Phase              Phase
	InProgress         bool
	Replaying          bool
	LastClassifiedText string
	Pending            bool
	// Prompting is set while Prompt.Show has not returned.
	Prompting bool
	Epoch     uint64
}
