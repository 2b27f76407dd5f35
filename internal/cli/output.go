package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a scenario or declaration failed
	ExitCommandError = 2 // the command itself could not run
)

// Codes for command-level problems. Declaration problems use the config
// package's E2xx codes.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeUnsupported = "E002"
	ErrCodeNotFound    = "E005"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func exitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func wrapExit(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code. Errors that carry no code are
// failures.
func ExitCode(err error) int {
	var ee *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ee):
		return ee.Code
	default:
		return ExitFailure
	}
}

// envelope is what every command prints with --format json.
type envelope struct {
	Status string   `json:"status"` // "ok" or "error"
	Data   any      `json:"data,omitempty"`
	Error  *problem `json:"error,omitempty"`
}

type problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// printer writes command output to out, either as text or as an envelope.
// Progress notes go to diag so they never interleave with JSON.
type printer struct {
	json    bool
	verbose bool
	out     io.Writer
	diag    io.Writer
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) *printer {
	return &printer{
		json:    opts.Format == "json",
		verbose: opts.Verbose,
		out:     cmd.OutOrStdout(),
		diag:    cmd.ErrOrStderr(),
	}
}

func (p *printer) emit(env envelope) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// result prints data inside an envelope whose status follows ok.
func (p *printer) result(ok bool, data any) error {
	status := "ok"
	if !ok {
		status = "error"
	}
	return p.emit(envelope{Status: status, Data: data})
}

// fail reports a single problem. Details are shown in text mode only when
// verbose.
func (p *printer) fail(code, message string, details any) error {
	if p.json {
		return p.emit(envelope{Status: "error", Error: &problem{Code: code, Message: message, Details: details}})
	}
	fmt.Fprintf(p.out, "Error [%s]: %s\n", code, message)
	if p.verbose && details != nil {
		fmt.Fprintf(p.out, "Details: %v\n", details)
	}
	return nil
}

// notef writes a progress note when verbose.
func (p *printer) notef(format string, args ...any) {
	if p.verbose {
		fmt.Fprintf(p.diag, format+"\n", args...)
	}
}

// newLogger returns a text logger on w. Debug level when verbose, warnings
// only otherwise, so engine chatter stays out of command output.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
