package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/autoload/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                 `json:"valid"`
	Loaders []string             `json:"loaders,omitempty"`
	Errors  []*config.FieldError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <loaders-file>",
		Short: "Validate a loader declaration file",
		Long: `Validate a CUE or YAML loader declaration file without starting
anything.

Checks URLs, durations, name templates and reload predicates of every
declared loader and reports all problems, not just the first.

Exit codes:
  0 - File is valid
  1 - One or more declarations are invalid
  2 - Command error (missing file, unsupported format)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	p := newPrinter(opts, cmd)

	f, err := config.Load(path)
	if err != nil {
		var fieldErr *config.FieldError
		switch {
		case errors.As(err, &fieldErr):
			return outputValidationErrors(p, []*config.FieldError{fieldErr})
		case errors.Is(err, os.ErrNotExist):
			return outputValidateError(p, ErrCodeNotFound, fmt.Sprintf("file not found: %s", path), nil)
		case errors.Is(err, config.ErrUnsupportedFormat):
			return outputValidateError(p, ErrCodeUnsupported, err.Error(), nil)
		default:
			return outputValidateError(p, config.ErrCodeSyntax, err.Error(), nil)
		}
	}

	p.notef("Found %d loader(s) in %s", len(f.Loaders), path)

	if errs := config.Validate(f); len(errs) > 0 {
		return outputValidationErrors(p, errs)
	}

	names := make([]string, 0, len(f.Loaders))
	for _, l := range f.Loaders {
		p.notef("Validated loader: %s", l.Name)
		names = append(names, l.Name)
	}

	return outputValidateSuccess(p, names)
}

func outputValidateSuccess(p *printer, names []string) error {
	if p.json {
		return p.result(true, ValidationResult{Valid: true, Loaders: names})
	}
	fmt.Fprintf(p.out, "✓ All loaders valid (%d)\n", len(names))
	return nil
}

// outputValidateError reports a file that could not be read or parsed.
func outputValidateError(p *printer, code, message string, details any) error {
	_ = p.fail(code, message, details)
	return exitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports declaration errors. The JSON envelope
// carries every error in data and the first one as the headline.
func outputValidationErrors(p *printer, errs []*config.FieldError) error {
	failed := exitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if p.json {
		if err := p.emit(envelope{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &problem{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(p.out, "✗ Validation failed")
	fmt.Fprintln(p.out)
	for _, err := range errs {
		fmt.Fprintf(p.out, "  %s\n", err.Error())
	}
	return failed
}
