package backend

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskrelay/taskrelay/internal/health"
	"github.com/taskrelay/taskrelay/internal/observe"
)

// Server exposes a Store over the tool-call HTTP surface the agent expects:
// one POST route per tool under /mcp/, plus /health, /manifest, and /metrics.
type Server struct {
	store   Store
	log     *slog.Logger
	metrics *observe.Metrics
	probes  *health.Handler
	now     func() time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithReadiness mounts the given probe handler's /healthz and /readyz routes
// alongside the tool routes.
func WithReadiness(h *health.Handler) ServerOption {
	return func(s *Server) { s.probes = h }
}

// NewServer returns a Server over the given store.
func NewServer(store Store, opts ...ServerOption) *Server {
	s := &Server{
		store:   store,
		log:     slog.Default(),
		metrics: observe.DefaultMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	r.Get("/health", s.handleHealth)
	r.Get("/manifest", s.handleManifest)
	r.Handle("/metrics", promhttp.Handler())
	if s.probes != nil {
		s.probes.Register(r)
	}

	r.Route("/mcp", func(r chi.Router) {
		r.Post("/list_tasks", s.handleListTasks)
		r.Post("/summarize_tasks", s.handleSummarizeTasks)
		r.Post("/add_task", s.handleAddTask)
		r.Post("/get_projects", s.handleGetProjects)
		r.Post("/complete_task", s.handleCompleteTask)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleManifest serves the tool manifest the agent bootstraps its registry
// from. base_url is left empty; the agent knows where it fetched the
// manifest from.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Manifest())
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	filter := Filter(stringField(payload, "filter"))
	if !filter.IsValid() {
		writeError(w, http.StatusBadRequest, "Invalid filter. Allowed: due_soon, flagged, inbox, all, completed, deferred")
		return
	}

	tasks, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.log.Error("list tasks failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleSummarizeTasks(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	filter := Filter(stringField(payload, "filter"))
	if !filter.IsValid() {
		writeError(w, http.StatusBadRequest, "Invalid filter. Allowed: due_soon, flagged, inbox, all, completed, deferred")
		return
	}

	tasks, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.log.Error("summarize tasks failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": Summarize(tasks, s.now())})
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	title := stringField(payload, "title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	task := &Task{
		Name:    title,
		Project: stringField(payload, "project"),
		Due:     stringField(payload, "due"),
		Defer:   stringField(payload, "defer"),
		Note:    stringField(payload, "note"),
	}
	if flagged, ok := payload["flagged"].(bool); ok {
		task.Flagged = flagged
	}

	if err := s.store.Create(r.Context(), task); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		status := http.StatusInternalServerError
		if task.Validate() != nil {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	s.log.Info("task created", "id", task.ID, "name", task.Name, "project", task.Project)
	writeJSON(w, http.StatusCreated, map[string]any{"status": "ok", "task": task})
}

func (s *Server) handleGetProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.Projects(r.Context())
	if err != nil {
		s.log.Error("get projects failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	taskID := stringField(payload, "task_id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	task, err := s.store.Complete(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.Error("complete task failed", "id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("task completed", "id", task.ID, "name", task.Name)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "task": task})
}

// decodePayload reads an optional JSON object body. An empty body counts as
// an empty payload.
func decodePayload(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	payload := map[string]any{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
