// Package httpapi exposes the workflow engine over a small JSON API. It adds
// no semantics of its own: every request is parsed, handed to the engine or
// scheduler, and the resulting error kind is mapped to a transport status.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/procflow/procflow/internal/process"
	"github.com/procflow/procflow/internal/schedule"
	"github.com/procflow/procflow/internal/template"
)

// Logger is the minimal logging contract the server needs.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

var errServerDisabled = errors.New("httpapi: server disabled")

// Server wraps the HTTP listener and handlers backing the engine API.
type Server struct {
	settings Settings
	engine   *process.Engine
	logger   Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer prepares an API server for the given engine.
func NewServer(settings Settings, engine *process.Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("httpapi: engine is required")
	}
	s := &Server{
		settings: settings,
		engine:   engine,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if !s.settings.Enabled {
		return errServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("httpapi: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", addr, err)
	}
	s.listener = listener
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("httpapi: serve error: %v", err)
		}
	}()
	s.logger.Printf("httpapi: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the route table, exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /templates/validate", s.handleValidateTemplate)
	mux.HandleFunc("POST /processes", s.handleStartProcess)
	mux.HandleFunc("GET /processes", s.handleListProcesses)
	mux.HandleFunc("GET /processes/{processID}", s.handleProcessStatus)
	mux.HandleFunc("POST /tasks/{taskID}/assignments", s.handleCreateAssignment)
	mux.HandleFunc("POST /tasks/{taskID}/assignments/{assignee}/close", s.handleCloseAssignment)
	mux.HandleFunc("DELETE /tasks/{taskID}/assignments/{assignee}", s.handleDeleteAssignment)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type validateResponse struct {
	TemplateID            string          `json:"template_id"`
	Schedule              schedule.Result `json:"schedule"`
	DurationLimit         int             `json:"duration_limit,omitempty"`
	DurationLimitExceeded bool            `json:"duration_limit_exceeded,omitempty"`
}

func (s *Server) handleValidateTemplate(w http.ResponseWriter, r *http.Request) {
	def, ok := s.readTemplate(w, r)
	if !ok {
		return
	}
	result, err := schedule.Compute(def.Tasks)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}
	resp := validateResponse{
		TemplateID:    def.ID,
		Schedule:      result,
		DurationLimit: def.DurationLimit,
	}
	if def.DurationLimit > 0 && result.Makespan > def.DurationLimit {
		resp.DurationLimitExceeded = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartProcess(w http.ResponseWriter, r *http.Request) {
	def, ok := s.readTemplate(w, r)
	if !ok {
		return
	}
	proc, err := s.engine.StartProcess(def)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proc)
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	procs := s.engine.Processes()
	statuses := make([]process.ProcessStatus, 0, len(procs))
	for _, proc := range procs {
		status, err := s.engine.Status(proc.ID)
		if err != nil {
			continue
		}
		statuses = append(statuses, status)
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleProcessStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "processID")
	if !ok {
		return
	}
	status, err := s.engine.Status(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type createAssignmentRequest struct {
	Assignee string     `json:"assignee"`
	DoneAt   *time.Time `json:"done_at,omitempty"`
}

type createAssignmentResponse struct {
	ID int `json:"id"`
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathInt(w, r, "taskID")
	if !ok {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req createAssignmentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	a := process.Assignment{TaskID: taskID, Assignee: req.Assignee}
	if req.DoneAt != nil {
		a.ClosedAt = *req.DoneAt
	}
	id, err := s.engine.CreateAssignment(a)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createAssignmentResponse{ID: id})
}

func (s *Server) handleCloseAssignment(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathInt(w, r, "taskID")
	if !ok {
		return
	}
	if err := s.engine.CloseAssignment(taskID, r.PathValue("assignee")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathInt(w, r, "taskID")
	if !ok {
		return
	}
	if err := s.engine.DeleteAssignment(taskID, r.PathValue("assignee")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) readTemplate(w http.ResponseWriter, r *http.Request) (template.ProcessTemplate, bool) {
	body, ok := s.readBody(w, r)
	if !ok {
		return template.ProcessTemplate{}, false
	}
	def, err := template.ParseYAML(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return template.ProcessTemplate{}, false
	}
	return def, true
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty body"})
		return nil, false
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload exceeds limit"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unable to read body"})
		return nil, false
	}
	return body, true
}

// writeEngineError maps engine error kinds to transport statuses: missing
// entities become 404, lifecycle and structural conflicts 409, invalid input
// 400, anything else 500.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, process.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err))
	case errors.Is(err, process.ErrAlreadyClosed),
		errors.Is(err, process.ErrAlreadyExists),
		errors.Is(err, process.ErrUnsatisfiedPrecondition):
		writeJSON(w, http.StatusConflict, errorBody(err))
	case errors.Is(err, process.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err))
	default:
		s.logger.Printf("httpapi: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	value, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return value, true
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
