package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/autoload/internal/binding"
)

// HTTPError is a non-2xx response from a loader's URL.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("GET %s: %d %s: %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// maxErrorBody bounds how much of an error response is kept in HTTPError.
const maxErrorBody = 512

// BuildOption configures Build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	client     *http.Client
	collection *binding.Collection
}

// WithHTTPClient sets the client used by built fetchers.
// Default: http.DefaultClient.
func WithHTTPClient(c *http.Client) BuildOption {
	return func(b *buildConfig) {
		b.client = c
	}
}

// WithCollection registers every built loader with c.
func WithCollection(c *binding.Collection) BuildOption {
	return func(b *buildConfig) {
		b.collection = c
	}
}

// Build turns a declaration into an Autoloader.
func Build(spec LoaderSpec, opts ...BuildOption) (*binding.Autoloader, error) {
	if errs := validateSpec(spec); len(errs) > 0 {
		return nil, joinFieldErrors(errs)
	}

	cfg := buildConfig{client: http.DefaultClient}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Already validated.
	interval, _ := parseDuration(spec.AutoRefreshInterval)
	expires, _ := parseDuration(spec.CacheExpiresIn)
	timeout, _ := parseDuration(spec.Timeout)

	options := []binding.Option{
		binding.WithAutoRefreshInterval(interval),
		binding.WithCacheExpiresIn(expires),
	}
	if spec.LoadOnInitialize != nil {
		options = append(options, binding.WithLoadOnInitialize(*spec.LoadOnInitialize))
	}
	if spec.StartOnMount != nil {
		options = append(options, binding.WithStartOnMount(*spec.StartOnMount))
	}
	if spec.ReloadOnMount != nil {
		options = append(options, binding.WithReloadOnMount(*spec.ReloadOnMount))
	}
	if spec.ResetOnUnmount != nil {
		options = append(options, binding.WithResetOnUnmount(*spec.ResetOnUnmount))
	}
	if spec.Reload != "" {
		p, err := binding.CompilePredicate(spec.Reload)
		if err != nil {
			return nil, err
		}
		options = append(options, binding.WithReload(p))
	}
	if spec.Reinitialize != "" {
		p, err := binding.CompilePredicate(spec.Reinitialize)
		if err != nil {
			return nil, err
		}
		options = append(options, binding.WithReinitialize(p))
	}
	if cfg.collection != nil {
		options = append(options, binding.WithCollection(cfg.collection))
	}

	name := spec.Name
	if placeholder.MatchString(name) {
		tmpl := name
		options = append(options, binding.WithNameFunc(func(props binding.Props) string {
			out, err := expand(tmpl, props, false)
			if err != nil {
				return ""
			}
			return out
		}))
		name = ""
	}

	return binding.New(name, httpFetcher(cfg.client, spec.URL, timeout), options...)
}

// BuildAll validates f and builds every loader in it.
func BuildAll(f *File, opts ...BuildOption) ([]*binding.Autoloader, error) {
	if errs := Validate(f); len(errs) > 0 {
		return nil, joinFieldErrors(errs)
	}

	out := make([]*binding.Autoloader, 0, len(f.Loaders))
	for _, spec := range f.Loaders {
		a, err := Build(spec, opts...)
		if err != nil {
			return nil, fmt.Errorf("loader %s: %w", spec.Name, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func joinFieldErrors(errs []*FieldError) error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return errors.Join(out...)
}

// httpFetcher GETs the expanded URL and decodes the JSON body.
func httpFetcher(client *http.Client, tmpl string, timeout time.Duration) binding.APICall {
	return func(ctx context.Context, props binding.Props) (any, error) {
		target, err := expand(tmpl, props, true)
		if err != nil {
			return nil, err
		}

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &HTTPError{
				URL:        target,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
			}
		}

		var data any
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", target, err)
		}
		return data, nil
	}
}

// expand fills {key} placeholders from props. With escape set, values are
// path-escaped.
func expand(tmpl string, props binding.Props, escape bool) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := props[key]
		if !ok || v == nil {
			missing = append(missing, key)
			return m
		}
		s := fmt.Sprint(v)
		if escape {
			s = url.PathEscape(s)
		}
		return s
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing props for %q: %s", tmpl, strings.Join(missing, ", "))
	}
	return out, nil
}
