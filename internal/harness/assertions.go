package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/store"
)

// stateFields are the keys final_state may check.
var stateFields = map[string]bool{
	"initialized": true,
	"loading":     true,
	"refreshing":  true,
	"data":        true,
	"error":       true,
	"interval":    true,
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d +%s %s %s\n", i+1, ev.Step, ev.At, ev.Type, ev.Loader)
		}
	}

	return buf.String()
}

// shortType resolves a scenario event name to its short form.
func shortType(name string) string {
	t, _ := event.ParseType(name)
	return t.Short()
}

// matches reports whether ev is of type typ for loader. An empty loader
// matches every loader.
func matches(ev TraceEvent, typ, loader string) bool {
	return ev.Type == typ && (loader == "" || ev.Loader == loader)
}

// assertTraceCount checks if the event appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	typ := shortType(assertion.Event)

	count := 0
	for _, ev := range trace {
		if matches(ev, typ, assertion.Loader) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s%s", assertion.Count, typ, forLoader(assertion.Loader)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertTraceOrder checks that the events appear in the given order.
// Events don't need to be consecutive, and a type may repeat.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	want := make([]string, len(assertion.Events))
	for i, name := range assertion.Events {
		want[i] = shortType(name)
	}

	next := 0
	for _, ev := range trace {
		if next == len(want) {
			break
		}
		if matches(ev, want[next], assertion.Loader) {
			next++
		}
	}

	if next < len(want) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("events in order%s: %v", forLoader(assertion.Loader), want),
			Actual:   fmt.Sprintf("matched %v, then no %s", want[:next], want[next]),
			Trace:    trace,
		}
	}

	return nil
}

// assertNoEventsAfter checks that none of the forbidden types follow the
// last occurrence of the anchor event for the loader.
func assertNoEventsAfter(trace []TraceEvent, assertion Assertion) error {
	anchor := shortType(assertion.Event)

	forbidden := map[string]bool{}
	for _, name := range assertion.Events {
		forbidden[shortType(name)] = true
	}
	if len(forbidden) == 0 {
		forbidden[event.FetchDataRequest.Short()] = true
	}

	last := -1
	for i, ev := range trace {
		if matches(ev, anchor, assertion.Loader) {
			last = i
		}
	}
	if last < 0 {
		return &AssertionError{
			Type:     AssertNoEventsAfter,
			Expected: fmt.Sprintf("%s%s", anchor, forLoader(assertion.Loader)),
			Actual:   "not found in trace",
			Trace:    trace,
		}
	}

	for _, ev := range trace[last+1:] {
		if ev.Loader == assertion.Loader && forbidden[ev.Type] {
			return &AssertionError{
				Type:     AssertNoEventsAfter,
				Expected: fmt.Sprintf("no %v after the last %s%s", sortedKeys(forbidden), anchor, forLoader(assertion.Loader)),
				Actual:   fmt.Sprintf("%s at step %d", ev.Type, ev.Step),
				Trace:    trace,
			}
		}
	}

	return nil
}

// assertFinalState checks the loader's record using subset semantics:
// only the keys in Expect are compared.
func assertFinalState(state store.State, assertion Assertion) error {
	rec, ok := state.Get(assertion.Loader)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record for loader %q", assertion.Loader),
			Actual:   "loader not in state",
		}
	}

	actual := stateView(rec)
	for _, key := range sortedKeys(assertion.Expect) {
		expected := assertion.Expect[key]
		if !valuesEqual(actual[key], expected) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v (type %T)", assertion.Loader, key, expected, expected),
				Actual:   fmt.Sprintf("%s.%s = %v (type %T)", assertion.Loader, key, actual[key], actual[key]),
			}
		}
	}

	return nil
}

// assertAbsent checks that the loader has no record.
func assertAbsent(state store.State, assertion Assertion) error {
	if _, ok := state.Get(assertion.Loader); ok {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("no record for loader %q", assertion.Loader),
			Actual:   "record present",
		}
	}
	return nil
}

// stateView flattens a record into the keys final_state understands.
func stateView(r store.Record) map[string]any {
	interval := ""
	if r.Config.AutoRefreshInterval > 0 {
		interval = r.Config.AutoRefreshInterval.String()
	}
	return map[string]any{
		"initialized": r.Initialized,
		"loading":     r.Loading,
		"refreshing":  r.Refreshing,
		"data":        r.Data,
		"error":       r.ErrorMessage(),
		"interval":    interval,
	}
}

// valuesEqual compares two values for equality, treating all numeric
// kinds as float64. Handles nested maps and slices.
func valuesEqual(actual, expected any) bool {
	return reflect.DeepEqual(normalize(actual), normalize(expected))
}

func normalize(v any) any {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

func forLoader(loader string) string {
	if loader == "" {
		return ""
	}
	return fmt.Sprintf(" for %q", loader)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertNoEventsAfter:
			err = assertNoEventsAfter(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		case AssertAbsent:
			err = assertAbsent(result.State, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
