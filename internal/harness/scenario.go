package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/autoload/internal/event"
)

// Scenario defines a conformance test scenario.
// Scenarios drive the engine through a sequence of commands on a manual
// clock and assert on the resulting event trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Loaders maps loader names to scripted fetch behaviour.
	Loaders map[string]LoaderFixture `yaml:"loaders,omitempty"`

	// Steps run in order. The harness waits for the engine to go idle
	// after every step.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_count, trace_order, final_state, absent, no_events_after
	Assertions []Assertion `yaml:"assertions"`
}

// LoaderFixture scripts the fetch function of one loader.
type LoaderFixture struct {
	// Responses are returned in order; the last one repeats once the list
	// is exhausted. With no responses the fetch returns its call count.
	Responses []Response `yaml:"responses,omitempty"`
}

// Response is one scripted fetch outcome.
type Response struct {
	Data  any    `yaml:"data,omitempty"`
	Error string `yaml:"error,omitempty"`
}

// Step is one scenario action.
type Step struct {
	// Action is one of the Step* constants.
	Action string `yaml:"action"`

	// Loader is required for every action except advance and settle.
	Loader string `yaml:"loader,omitempty"`

	// Interval is a Go duration. It sets the configured interval on
	// initialize and set_config, and the explicit interval on start_refresh.
	Interval string `yaml:"interval,omitempty"`

	// LoadImmediately applies to start_refresh.
	LoadImmediately bool `yaml:"load_immediately,omitempty"`

	// Duration is the clock advance for advance.
	Duration string `yaml:"duration,omitempty"`

	// Event and Count configure await: wait until Count events of type
	// Event have been dispatched for Loader.
	Event string `yaml:"event,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Step actions.
const (
	StepInitialize   = "initialize"
	StepStartRefresh = "start_refresh"
	StepStopRefresh  = "stop_refresh"
	StepLoad         = "load"
	StepReset        = "reset"
	StepSetConfig    = "set_config"
	StepAdvance      = "advance"
	StepAwait        = "await"
	StepSettle       = "settle"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_count": Event appears exactly Count times for Loader
	// - "trace_order": Events appear in order for Loader (gaps allowed)
	// - "final_state": Loader's record matches Expect (subset)
	// - "absent": Loader has no record
	// - "no_events_after": none of Events follow the last Event for Loader
	Type string `yaml:"type"`

	// Loader scopes the assertion. Empty matches every loader for the
	// trace assertions.
	Loader string `yaml:"loader,omitempty"`

	// Event is the event type (short or full form), used by trace_count
	// and no_events_after.
	Event string `yaml:"event,omitempty"`

	// Events is the expected order for trace_order, or the forbidden
	// types for no_events_after (default FETCH_DATA_REQUEST).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Expect contains expected record fields (used by final_state).
	// Keys: initialized, loading, refreshing, data, error, interval.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceCount    = "trace_count"
	AssertTraceOrder    = "trace_order"
	AssertFinalState    = "final_state"
	AssertAbsent        = "absent"
	AssertNoEventsAfter = "no_events_after"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its action.
func validateStep(index int, s *Step) error {
	switch s.Action {
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	case StepAdvance:
		if s.Duration == "" {
			return fmt.Errorf("steps[%d]: duration is required for advance", index)
		}
		d, err := time.ParseDuration(s.Duration)
		if err != nil {
			return fmt.Errorf("steps[%d]: invalid duration: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: duration must be non-negative", index)
		}
		return nil
	case StepSettle:
		return nil
	case StepInitialize, StepStartRefresh, StepStopRefresh, StepLoad, StepReset, StepSetConfig, StepAwait:
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, s.Action)
	}

	if s.Loader == "" {
		return fmt.Errorf("steps[%d]: loader is required for %s", index, s.Action)
	}

	if s.Interval != "" {
		if _, err := time.ParseDuration(s.Interval); err != nil {
			return fmt.Errorf("steps[%d]: invalid interval: %w", index, err)
		}
	}
	if s.Action == StepSetConfig && s.Interval == "" {
		return fmt.Errorf("steps[%d]: interval is required for set_config", index)
	}

	if s.Action == StepAwait {
		if _, ok := event.ParseType(s.Event); !ok {
			return fmt.Errorf("steps[%d]: unknown event type %q", index, s.Event)
		}
		if s.Count <= 0 {
			return fmt.Errorf("steps[%d]: count must be positive for await", index)
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceCount:
		if _, ok := event.ParseType(a.Event); !ok {
			return fmt.Errorf("assertions[%d]: unknown event type %q", index, a.Event)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertFinalState:
		if a.Loader == "" {
			return fmt.Errorf("assertions[%d]: loader is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for key := range a.Expect {
			if !stateFields[key] {
				return fmt.Errorf("assertions[%d]: unknown state field %q", index, key)
			}
		}
	case AssertAbsent:
		if a.Loader == "" {
			return fmt.Errorf("assertions[%d]: loader is required for absent", index)
		}
	case AssertNoEventsAfter:
		if a.Loader == "" {
			return fmt.Errorf("assertions[%d]: loader is required for no_events_after", index)
		}
		if _, ok := event.ParseType(a.Event); !ok {
			return fmt.Errorf("assertions[%d]: unknown event type %q", index, a.Event)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	for _, name := range a.Events {
		if _, ok := event.ParseType(name); !ok {
			return fmt.Errorf("assertions[%d]: unknown event type %q", index, name)
		}
	}

	return nil
}
