package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/autoload/internal/event"
)

// payload is the per-type part of an event as stored in events.payload.
// FetchFuncs are never stored.
type payload struct {
	Config          *event.Config      `json:"config,omitempty"`
	Patch           *event.ConfigPatch `json:"patch,omitempty"`
	Interval        time.Duration      `json:"interval,omitempty"`
	LoadImmediately bool               `json:"load_immediately,omitempty"`
	Data            any                `json:"data,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// RecordedError is a fetch failure read back from the journal. Only the
// message survives.
type RecordedError struct {
	Message string
}

func (e *RecordedError) Error() string {
	return e.Message
}

// marshalPayload converts the type-specific fields of ev to JSON TEXT.
// HTML escaping is disabled so stored payloads read as written.
func marshalPayload(ev event.Event) (string, error) {
	p := payload{
		Config:          ev.Config,
		Interval:        ev.Interval,
		LoadImmediately: ev.LoadImmediately,
		Data:            ev.Data,
	}
	if ev.Type == event.SetConfig {
		patch := ev.Patch
		p.Patch = &patch
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalPayload restores the type-specific fields into ev.
// Data decodes with JSON's default types, so numbers come back as float64.
func unmarshalPayload(data string, ev *event.Event) error {
	if data == "" || data == "{}" {
		return nil
	}

	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	ev.Config = p.Config
	if p.Patch != nil {
		ev.Patch = *p.Patch
	}
	ev.Interval = p.Interval
	ev.LoadImmediately = p.LoadImmediately
	ev.Data = p.Data
	if p.Error != "" {
		ev.Err = &RecordedError{Message: p.Error}
	}
	return nil
}

func toUnixNano(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}
