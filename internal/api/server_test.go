package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autoload/internal/binding"
	"github.com/roach88/autoload/internal/engine"
	"github.com/roach88/autoload/internal/store"
)

const waitTimeout = 2 * time.Second

type testEnv struct {
	t          *testing.T
	srv        *Server
	ts         *httptest.Server
	store      *store.Store
	collection *binding.Collection
	calls      atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	st := store.New()
	eng := engine.New(st,
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	env := &testEnv{
		t:          t,
		store:      st,
		collection: binding.NewCollection(),
	}
	env.srv = NewServer(":0", Deps{
		Store:      st,
		Engine:     eng,
		Binder:     binding.NewBinder(st, binding.WithLogger(logger)),
		Collection: env.collection,
		Registry:   reg,
	}, logger)

	env.ts = httptest.NewServer(env.srv.Router())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) fetch(_ context.Context, props binding.Props) (any, error) {
	n := e.calls.Add(1)
	if id, ok := props["id"]; ok {
		return map[string]any{"id": id, "call": n}, nil
	}
	return n, nil
}

func (e *testEnv) define(name string, opts ...binding.Option) *binding.Autoloader {
	e.t.Helper()
	opts = append([]binding.Option{binding.WithCollection(e.collection)}, opts...)
	a, err := binding.New(name, e.fetch, opts...)
	require.NoError(e.t, err)
	e.srv.Define(name, a)
	return a
}

func (e *testEnv) mount(name string) {
	e.t.Helper()
	a := e.define(name)
	_, err := e.srv.Mount(a, nil)
	require.NoError(e.t, err)
}

func (e *testEnv) do(method, path string, body string) *http.Response {
	e.t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, r)
	require.NoError(e.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) loader(name string) loaderResponse {
	e.t.Helper()
	resp := e.do(http.MethodGet, "/v1/loaders/"+name, "")
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	return decode[loaderResponse](e.t, resp)
}

func (e *testEnv) eventually(cond func() bool, msg string) {
	e.t.Helper()
	require.Eventually(e.t, cond, waitTimeout, 5*time.Millisecond, msg)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "ok", decode[healthResponse](t, resp).Status)
}

func TestPanicRecovery(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	resp := env.do(http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/v1/loaders", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.mount("users")
	env.eventually(func() bool { return env.calls.Load() == 1 }, "mount never fetched")

	env.do(http.MethodGet, "/healthz", "")

	var body string
	env.eventually(func() bool {
		resp := env.do(http.MethodGet, "/metrics", "")
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		body = string(raw)
		return strings.Contains(body, `autoload_fetch_total{loader="users",outcome="success"} 1`)
	}, "fetch metric never exported")

	assert.Contains(t, body, `autoload_http_requests_total{method="GET",path="/healthz",status="200"} 1`)
	assert.Contains(t, body, "autoload_events_total")
}
