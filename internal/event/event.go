package event

import (
	"context"
	"strings"
	"time"
)

// Type identifies an event kind.
type Type string

const typePrefix = "@@autoload/"

const (
	Initialize       Type = typePrefix + "INITIALIZE"
	FetchDataRequest Type = typePrefix + "FETCH_DATA_REQUEST"
	FetchDataSuccess Type = typePrefix + "FETCH_DATA_SUCCESS"
	FetchDataFailure Type = typePrefix + "FETCH_DATA_FAILURE"
	StartRefresh     Type = typePrefix + "START_REFRESH"
	StopRefresh      Type = typePrefix + "STOP_REFRESH"
	Load             Type = typePrefix + "LOAD"
	Reset            Type = typePrefix + "RESET"
	SetConfig        Type = typePrefix + "SET_CONFIG"
)

var allTypes = []Type{
	Initialize,
	FetchDataRequest,
	FetchDataSuccess,
	FetchDataFailure,
	StartRefresh,
	StopRefresh,
	Load,
	Reset,
	SetConfig,
}

// Types returns every known event type in declaration order.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Short returns the type name without the namespace prefix,
// e.g. "FETCH_DATA_REQUEST".
func (t Type) Short() string {
	return strings.TrimPrefix(string(t), typePrefix)
}

// ParseType resolves either the full or the short form of a type name.
func ParseType(s string) (Type, bool) {
	t := Type(s)
	if !strings.HasPrefix(s, typePrefix) {
		t = Type(typePrefix + strings.ToUpper(s))
	}
	return t, t.Valid()
}

// FetchFunc is the caller-supplied data fetch. Retries, if any, are the
// function's own business; the engine calls it at most once per tick.
type FetchFunc func(ctx context.Context) (any, error)

// Config is the per-loader configuration held in the store.
// A zero AutoRefreshInterval means auto refresh is disabled.
type Config struct {
	AutoRefreshInterval time.Duration `json:"auto_refresh_interval"`
}

// ConfigPatch is a partial Config. Nil fields are left untouched on merge.
type ConfigPatch struct {
	AutoRefreshInterval *time.Duration `json:"auto_refresh_interval,omitempty"`
}

// Apply merges p into c and returns the result.
func (p ConfigPatch) Apply(c Config) Config {
	if p.AutoRefreshInterval != nil {
		c.AutoRefreshInterval = *p.AutoRefreshInterval
	}
	return c
}

// Event is a single entry of the dispatch stream.
//
// Only the fields relevant to Type are set:
//   - Initialize: Config (nil means defaults)
//   - SetConfig: Patch
//   - StartRefresh: Fetch, Interval (zero means "use the configured interval"), LoadImmediately
//   - Load, FetchDataRequest: Fetch
//   - FetchDataSuccess: Data, ReceivedAt
//   - FetchDataFailure: Err, ReceivedAt
type Event struct {
	Type   Type
	Loader string

	// Seq is the logical dispatch position, stamped by the store.
	Seq int64

	Config *Config
	Patch  ConfigPatch

	Fetch           FetchFunc
	Interval        time.Duration
	LoadImmediately bool

	Data       any
	Err        error
	ReceivedAt time.Time
}

// IsCommand reports whether the coordination engine reacts to the event.
func (e Event) IsCommand() bool {
	switch e.Type {
	case StartRefresh, StopRefresh, Load, Reset:
		return true
	default:
		return false
	}
}
