package harness

import (
	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/store"
)

// TraceEvent is the rendered form of a dispatched event.
//
// At is the manual clock's offset from its epoch when the event was
// dispatched. Seq is omitted: within a step, events are ordered by loader
// and then by dispatch order.
type TraceEvent struct {
	Step   int    `json:"step"`
	Type   string `json:"type"`
	Loader string `json:"loader"`
	At     string `json:"at"`

	Interval        string `json:"interval,omitempty"`
	LoadImmediately bool   `json:"load_immediately,omitempty"`
	Data            any    `json:"data,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains every dispatched event, grouped by step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the store state after the last step.
	State store.State `json:"state,omitempty"`

	// Events are the raw dispatched events in Seq order, for journaling.
	Events []event.Event `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  store.State{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
