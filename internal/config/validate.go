package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"cuelang.org/go/cue/token"

	"github.com/roach88/autoload/internal/binding"
)

// Validation error codes (E200-E299)
const (
	ErrCodeSyntax          = "E200" // file does not parse
	ErrCodeMissingURL      = "E201" // url is required
	ErrCodeInvalidURL      = "E202" // url does not parse or is not http(s)
	ErrCodeInvalidDuration = "E203" // duration string does not parse
	ErrCodeNegative        = "E204" // duration is negative
	ErrCodeInvalidPred     = "E205" // reload/reinitialize does not compile
	ErrCodeUnknownField    = "E206" // unrecognized key
	ErrCodeInvalidName     = "E207" // loader name is empty or malformed
)

// FieldError is a problem with one field of one loader declaration.
type FieldError struct {
	Loader  string    `json:"loader,omitempty"`
	Field   string    `json:"field"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Pos     token.Pos `json:"-"`
}

func (e *FieldError) Error() string {
	var b strings.Builder
	if e.Pos.IsValid() {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	fmt.Fprintf(&b, "[%s] ", e.Code)
	if e.Loader != "" {
		fmt.Fprintf(&b, "loader.%s.", e.Loader)
	}
	fmt.Fprintf(&b, "%s: %s", e.Field, e.Message)
	return b.String()
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Validate checks every loader in f. Returns all errors found (does not
// fail-fast).
func Validate(f *File) []*FieldError {
	var errs []*FieldError
	for _, spec := range f.Loaders {
		errs = append(errs, validateSpec(spec)...)
	}
	return errs
}

func validateSpec(spec LoaderSpec) []*FieldError {
	var errs []*FieldError
	fail := func(field, code, format string, args ...any) {
		errs = append(errs, &FieldError{
			Loader:  spec.Name,
			Field:   field,
			Code:    code,
			Message: fmt.Sprintf(format, args...),
			Pos:     spec.Pos,
		})
	}

	if strings.TrimSpace(spec.Name) == "" {
		fail("name", ErrCodeInvalidName, "loader name must be non-empty")
	}
	if strings.ContainsAny(placeholder.ReplaceAllString(spec.Name, ""), "{}") {
		fail("name", ErrCodeInvalidName, "unbalanced placeholder in %q", spec.Name)
	}

	switch {
	case spec.URL == "":
		fail("url", ErrCodeMissingURL, "url is required")
	default:
		u, err := url.Parse(placeholder.ReplaceAllString(spec.URL, "x"))
		if err != nil {
			fail("url", ErrCodeInvalidURL, "%v", err)
		} else if u.Scheme != "http" && u.Scheme != "https" {
			fail("url", ErrCodeInvalidURL, "scheme must be http or https, got %q", u.Scheme)
		}
	}

	durations := []struct {
		field string
		value string
	}{
		{"auto_refresh_interval", spec.AutoRefreshInterval},
		{"cache_expires_in", spec.CacheExpiresIn},
		{"timeout", spec.Timeout},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.value); err != nil {
			code := ErrCodeInvalidDuration
			if errors.Is(err, errNegativeDuration) {
				code = ErrCodeNegative
			}
			fail(d.field, code, "%v", err)
		}
	}

	predicates := []struct {
		field string
		value string
	}{
		{"reload", spec.Reload},
		{"reinitialize", spec.Reinitialize},
	}
	for _, p := range predicates {
		if p.value == "" {
			continue
		}
		if _, err := binding.CompilePredicate(p.value); err != nil {
			fail(p.field, ErrCodeInvalidPred, "%v", err)
		}
	}

	return errs
}

var errNegativeDuration = errors.New("duration must not be negative")

// parseDuration parses a Go duration string. Empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errNegativeDuration
	}
	return d, nil
}
