package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/autoload/internal/binding"
	"github.com/roach88/autoload/internal/engine"
	"github.com/roach88/autoload/internal/store"
)

const maxBodySize = 1 << 20 // 1 MB

// loaderResponse is the JSON form of one loader.
type loaderResponse struct {
	Name            string           `json:"name"`
	Mounted         bool             `json:"mounted"`
	Initialized     bool             `json:"initialized"`
	Loading         bool             `json:"loading"`
	Refreshing      bool             `json:"refreshing"`
	Data            any              `json:"data,omitempty"`
	Error           string           `json:"error,omitempty"`
	DataReceivedAt  *time.Time       `json:"data_received_at,omitempty"`
	ErrorReceivedAt *time.Time       `json:"error_received_at,omitempty"`
	UpdatedAt       *time.Time       `json:"updated_at,omitempty"`
	Interval        string           `json:"interval,omitempty"`
	Task            *engine.TaskInfo `json:"task,omitempty"`
}

// listLoadersResponse wraps the list response.
type listLoadersResponse struct {
	Loaders  []loaderResponse `json:"loaders"`
	Pending  int64            `json:"pending"`
	Inflight int64            `json:"inflight"`
}

// mountRequest is the JSON body for POST /v1/loaders.
type mountRequest struct {
	Definition string         `json:"definition"`
	Props      map[string]any `json:"props"`
}

type refreshCollectionResponse struct {
	Refreshed []string `json:"refreshed"`
}

func (s *Server) handleListLoaders(w http.ResponseWriter, _ *http.Request) {
	st := s.store.State()
	snap := s.engine.Snapshot()
	tasks := tasksByLoader(snap.Tasks)

	seen := make(map[string]bool)
	names := st.Names()
	for _, name := range names {
		seen[name] = true
	}
	s.mu.Lock()
	for name := range s.instances {
		if !seen[name] {
			names = append(names, name)
		}
	}
	s.mu.Unlock()
	sort.Strings(names)

	loaders := make([]loaderResponse, 0, len(names))
	for _, name := range names {
		loaders = append(loaders, s.describe(name, st, tasks))
	}

	s.writeJSON(w, http.StatusOK, listLoadersResponse{
		Loaders:  loaders,
		Pending:  snap.Pending,
		Inflight: snap.Inflight,
	})
}

func (s *Server) handleGetLoader(w http.ResponseWriter, r *http.Request) {
	name := loaderParam(r)
	st := s.store.State()

	_, inState := st.Get(name)
	_, mounted := s.instance(name)
	if !inState && !mounted {
		s.writeError(w, http.StatusNotFound, "loader not found")
		return
	}

	s.writeJSON(w, http.StatusOK, s.describe(name, st, tasksByLoader(s.engine.Snapshot().Tasks)))
}

func (s *Server) handleMountLoader(w http.ResponseWriter, r *http.Request) {
	var req mountRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Definition == "" {
		s.writeError(w, http.StatusBadRequest, "definition is required")
		return
	}

	s.mu.Lock()
	def, ok := s.definitions[req.Definition]
	s.mu.Unlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, "definition not found")
		return
	}

	inst, err := s.Mount(def, binding.Props(req.Props))
	var cfgErr *binding.ConfigError
	switch {
	case errors.Is(err, ErrAlreadyMounted):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.As(err, &cfgErr):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("mount loader", "definition", req.Definition, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to mount loader")
		return
	}

	s.writeJSON(w, http.StatusCreated, s.describe(inst.Name(), s.store.State(), tasksByLoader(s.engine.Snapshot().Tasks)))
}

func (s *Server) handleUnmountLoader(w http.ResponseWriter, r *http.Request) {
	name := loaderParam(r)

	s.mu.Lock()
	inst, ok := s.instances[name]
	delete(s.instances, name)
	s.mu.Unlock()

	if !ok {
		s.writeError(w, http.StatusNotFound, "loader not mounted")
		return
	}

	inst.Unmount()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	s.withInstance(w, r, func(inst *binding.Instance) error {
		return inst.Refresh()
	})
}

func (s *Server) handleStartRefresh(w http.ResponseWriter, r *http.Request) {
	var interval time.Duration
	if raw := r.URL.Query().Get("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			s.writeError(w, http.StatusBadRequest, "interval must be a non-negative duration")
			return
		}
		interval = d
	}

	s.withInstance(w, r, func(inst *binding.Instance) error {
		return inst.StartAutoRefresh(interval)
	})
}

func (s *Server) handleStopRefresh(w http.ResponseWriter, r *http.Request) {
	s.withInstance(w, r, func(inst *binding.Instance) error {
		return inst.StopAutoRefresh()
	})
}

func (s *Server) handleRefreshCollection(w http.ResponseWriter, _ *http.Request) {
	if s.collection == nil {
		s.writeJSON(w, http.StatusAccepted, refreshCollectionResponse{Refreshed: []string{}})
		return
	}

	names := s.collection.Names()
	if err := s.collection.RefreshAll(); err != nil {
		s.logger.Error("refresh collection", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, refreshCollectionResponse{Refreshed: names})
}

// withInstance runs action on the mounted instance named in the URL and
// responds 202 with the loader's state.
func (s *Server) withInstance(w http.ResponseWriter, r *http.Request, action func(*binding.Instance) error) {
	name := loaderParam(r)

	inst, ok := s.instance(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "loader not mounted")
		return
	}

	if err := action(inst); err != nil {
		if errors.Is(err, binding.ErrUnmounted) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("loader action", "loader", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "loader action failed")
		return
	}

	s.writeJSON(w, http.StatusAccepted, s.describe(name, s.store.State(), tasksByLoader(s.engine.Snapshot().Tasks)))
}

func (s *Server) describe(name string, st store.State, tasks map[string]engine.TaskInfo) loaderResponse {
	_, mounted := s.instance(name)
	resp := loaderResponse{Name: name, Mounted: mounted}

	if task, ok := tasks[name]; ok {
		resp.Task = &task
	}

	rec, ok := st.Get(name)
	if !ok {
		return resp
	}

	resp.Initialized = rec.Initialized
	resp.Loading = rec.Loading
	resp.Refreshing = rec.Refreshing
	resp.Data = rec.Data
	resp.Error = rec.ErrorMessage()
	resp.DataReceivedAt = timePtr(rec.DataReceivedAt)
	resp.ErrorReceivedAt = timePtr(rec.ErrorReceivedAt)
	resp.UpdatedAt = timePtr(rec.UpdatedAt)
	if rec.Config.AutoRefreshInterval > 0 {
		resp.Interval = rec.Config.AutoRefreshInterval.String()
	}
	return resp
}

func tasksByLoader(tasks []engine.TaskInfo) map[string]engine.TaskInfo {
	out := make(map[string]engine.TaskInfo, len(tasks))
	for _, t := range tasks {
		out[t.Loader] = t
	}
	return out
}

// loaderParam returns the unescaped {name} URL parameter.
func loaderParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
