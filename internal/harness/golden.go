package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// MarshalSnapshot renders a snapshot as indented JSON with a trailing
// newline. Map keys are sorted, so equal traces render identically.
func MarshalSnapshot(s TraceSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// goldenDir holds one <scenario>.golden file per scenario, relative to the
// test's package directory. Regenerate with go test -update.
const goldenDir = "testdata/golden"

// RunWithGolden runs scenario and fails t when the rendered trace differs
// from its golden file. The result is returned for Pass and Errors checks.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	snapshot, err := MarshalSnapshot(TraceSnapshot{ScenarioName: scenario.Name, Trace: result.Trace})
	if err != nil {
		return nil, err
	}

	goldie.New(t,
		goldie.WithFixtureDir(goldenDir),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, scenario.Name, snapshot)
	return result, nil
}
