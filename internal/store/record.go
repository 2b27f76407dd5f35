package store

import (
	"time"

	"github.com/roach88/autoload/internal/event"
)

// Record is the state of one named loader.
//
// Zero timestamps mean "absent".
type Record struct {
	Initialized bool `json:"initialized"`
	Loading     bool `json:"loading"`
	Refreshing  bool `json:"refreshing"`

	Data           any       `json:"data,omitempty"`
	DataReceivedAt time.Time `json:"data_received_at,omitempty"`

	Err             error     `json:"-"`
	ErrorReceivedAt time.Time `json:"error_received_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`

	Config event.Config `json:"config"`
}

// ErrorMessage returns the error text, or "" when the record carries no error.
func (r Record) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// State maps loader names to records. Treat it as read-only.
type State map[string]Record

// Get returns the record for name.
func (s State) Get(name string) (Record, bool) {
	r, ok := s[name]
	return r, ok
}

// Names returns the loader names in unspecified order.
func (s State) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	return names
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
