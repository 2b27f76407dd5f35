package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autoload/internal/journal"
)

func executeRun(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunCommandText(t *testing.T) {
	path := writeFile(t, t.TempDir(), "single_load.yaml", passingScenario)

	out, err := executeRun(t, "text", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Scenario: single_load")
	assert.Contains(t, out, "step 1 +0s INITIALIZE users")
	assert.Contains(t, out, "FETCH_DATA_SUCCESS users data=1")
	assert.Contains(t, out, "users: loading=false refreshing=false data=1")
	assert.Contains(t, out, "✓ single_load")
}

func TestRunCommandJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "single_load.yaml", passingScenario)

	out, err := executeRun(t, "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	require.Len(t, resp.Data.Trace, 4)
	assert.Equal(t, "INITIALIZE", resp.Data.Trace[0].Type)
	assert.Equal(t, "FETCH_DATA_SUCCESS", resp.Data.Trace[3].Type)
	assert.Empty(t, resp.Data.RunID)
}

func TestRunCommandFailingScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "wrong_count.yaml", failingScenario)

	out, err := executeRun(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Contains(t, out, "✗ wrong_count")
	assert.Contains(t, out, "trace_count")
}

func TestRunCommandMissingScenario(t *testing.T) {
	_, err := executeRun(t, "text", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRunCommandJournal(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "single_load.yaml", passingScenario)
	db := filepath.Join(dir, "autoload.db")

	out, err := executeRun(t, "text", path, "--journal", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded as run ")

	j, err := journal.Open(db)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	run, err := j.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "single_load", run.Name)
	assert.Equal(t, 4, run.EventCount)

	replayed, err := j.Replay(ctx, run.ID)
	require.NoError(t, err)
	rec, ok := replayed.State.Get("users")
	require.True(t, ok)
	assert.False(t, rec.Loading)
}
