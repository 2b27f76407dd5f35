package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "determinism",
		Trace: []TraceEvent{
			{Step: 1, Type: "FETCH_DATA_SUCCESS", Loader: "users", At: "0s", Data: map[string]any{"b": 2, "a": 1}},
		},
	}

	first, err := MarshalSnapshot(snapshot)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalSnapshot(snapshot)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.Contains(t, string(first), "\"a\": 1,\n")
	assert.Regexp(t, `"a": 1,\s+"b": 2`, string(first))
	assert.Equal(t, byte('\n'), first[len(first)-1])
}

func TestMarshalSnapshot_NoHTMLEscaping(t *testing.T) {
	out, err := MarshalSnapshot(TraceSnapshot{
		ScenarioName: "escaping",
		Trace: []TraceEvent{
			{Step: 1, Type: "FETCH_DATA_FAILURE", Loader: "a&b", At: "0s", Error: "<nil> response"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"loader": "a&b"`)
	assert.Contains(t, string(out), `"error": "<nil> response"`)
}
