package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonPrinter() (*printer, *bytes.Buffer, *bytes.Buffer) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	return &printer{json: true, out: out, diag: diag}, out, diag
}

func decodeEnvelope(t *testing.T, b []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(b, &env))
	return env
}

func TestPrinter_Result(t *testing.T) {
	tests := []struct {
		ok     bool
		status string
	}{
		{true, "ok"},
		{false, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			p, out, _ := jsonPrinter()
			require.NoError(t, p.result(tt.ok, map[string]int{"failed": 2}))

			env := decodeEnvelope(t, out.Bytes())
			assert.Equal(t, tt.status, env.Status)
			assert.Nil(t, env.Error)
			assert.Equal(t, map[string]any{"failed": float64(2)}, env.Data)
			assert.Contains(t, out.String(), "\n  \"status\"", "envelopes are indented")
		})
	}
}

func TestPrinter_FailJSON(t *testing.T) {
	p, out, _ := jsonPrinter()
	require.NoError(t, p.fail(ErrCodeNotFound, "file not found: loaders.yaml", map[string]string{"path": "loaders.yaml"}))

	env := decodeEnvelope(t, out.Bytes())
	assert.Equal(t, "error", env.Status)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeNotFound, env.Error.Code)
	assert.Equal(t, "file not found: loaders.yaml", env.Error.Message)
	assert.Equal(t, map[string]any{"path": "loaders.yaml"}, env.Error.Details)
}

func TestPrinter_FailText(t *testing.T) {
	details := map[string]string{"file": "loaders.cue"}

	quiet := &bytes.Buffer{}
	require.NoError(t, (&printer{out: quiet}).fail(ErrCodeGeneric, "config invalid", details))
	assert.Equal(t, "Error [E001]: config invalid\n", quiet.String())

	loud := &bytes.Buffer{}
	require.NoError(t, (&printer{out: loud, verbose: true}).fail(ErrCodeGeneric, "config invalid", details))
	assert.Contains(t, loud.String(), "Error [E001]: config invalid")
	assert.Contains(t, loud.String(), "Details: map[file:loaders.cue]")
}

func TestPrinter_NotesGoToDiag(t *testing.T) {
	p, out, diag := jsonPrinter()
	p.notef("Running %s", "refresh_cadence")
	assert.Empty(t, diag.String(), "notes need --verbose")

	p.verbose = true
	p.notef("Running %s", "refresh_cadence")
	assert.Empty(t, out.String())
	assert.Equal(t, "Running refresh_cadence\n", diag.String())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error", exitError(ExitCommandError, "bad path"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", exitError(ExitCommandError, "bad path")), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestWrapExit(t *testing.T) {
	cause := errors.New("disk full")
	err := wrapExit(ExitCommandError, "failed to record run", cause)

	assert.Equal(t, "failed to record run: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}
