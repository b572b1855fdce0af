// Package httpapi is the front service: it terminates HTTP, round-trips
// requests to the runner over the bus, and records each round-trip as a
// MessageRequest.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/schmitthub/forgeyard/internal/bus"
	"github.com/schmitthub/forgeyard/internal/fault"
	"github.com/schmitthub/forgeyard/internal/logger"
	"github.com/schmitthub/forgeyard/internal/store"
)

const (
	maxMultipartMemory = 64 << 20
	completionTimeout  = 5 * time.Second
)

type busAPI interface {
	Call(ctx context.Context, op string, header bus.Header, body []byte) ([]byte, error)
	Cast(ctx context.Context, op string, header bus.Header) error
}

// requestLog persists MessageRequest rows. Failures are logged, never
// surfaced: losing an audit row must not fail the user's request.
type requestLog interface {
	CreateMessageRequest(ctx context.Context, req *store.MessageRequest) error
	CompleteMessageRequest(ctx context.Context, id primitive.ObjectID, response any, errPayload *store.ErrorPayload) error
}

type executionReader interface {
	ListExecutions(ctx context.Context, project string) ([]store.ContainerExecution, error)
	GetExecution(ctx context.Context, id primitive.ObjectID) (store.ContainerExecution, error)
}

// Server owns the front-service routes.
type Server struct {
	bus          busAPI
	requests     requestLog
	executions   executionReader
	replyTimeout time.Duration
}

// projectConfig is the optional JSON part attached to uploads and
// submissions.
type projectConfig struct {
	ContainerTimeout       int               `json:"containerTimeout"`
	TestExecutionArguments map[string]string `json:"testExecutionArguments"`
}

// New assembles the server.
func New(b busAPI, requests requestLog, executions executionReader, replyTimeout time.Duration) *Server {
	return &Server{bus: b, requests: requests, executions: executions, replyTimeout: replyTimeout}
}

// Router builds the chi router for the front service.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/projects/{name}", s.handleCreateProject)
	r.Delete("/projects/{name}", s.handleRemoveProject)
	r.Get("/projects/{name}/executions", s.handleListExecutions)
	r.Get("/executions/{id}", s.handleGetExecution)
	r.Post("/submissions/{projectName}", s.handleSubmit)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	archive, err := readArchivePart(r, "projectZip")
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := readConfigPart(r, "projectConfig")
	if err != nil {
		writeError(w, err)
		return
	}

	header := bus.Header{
		ProjectName:         name,
		ContainerTimeoutSec: cfg.ContainerTimeout,
		ExecutionArgs:       cfg.TestExecutionArguments,
	}
	reply, err := s.roundTrip(r, bus.OpProjectUpload, name, header, archive)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRawJSON(w, http.StatusCreated, reply)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "projectName")

	archive, err := readArchivePart(r, "srcZip")
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := readConfigPart(r, "projectConfig")
	if err != nil {
		writeError(w, err)
		return
	}

	header := bus.Header{
		ProjectName:         name,
		ContainerTimeoutSec: cfg.ContainerTimeout,
		ExecutionArgs:       cfg.TestExecutionArguments,
	}
	reply, err := s.roundTrip(r, bus.OpSubmissionExecute, name, header, archive)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, reply)
}

func (s *Server) handleRemoveProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.bus.Cast(r.Context(), bus.OpProjectRemoval, bus.Header{ProjectName: name}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	execs, err := s.executions.ListExecutions(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if execs == nil {
		execs = []store.ContainerExecution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")

	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		writeError(w, fault.New(fault.NotFound, "execution %q not found", raw))
		return
	}

	exec, err := s.executions.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// roundTrip publishes a request, waits for the reply within the configured
// deadline, and books both halves of the MessageRequest row.
func (s *Server) roundTrip(r *http.Request, op, project string, header bus.Header, body []byte) ([]byte, error) {
	row := &store.MessageRequest{
		Submitter:     r.RemoteAddr,
		Operation:     op,
		Project:       project,
		CorrelationID: uuid.NewString(),
	}
	if err := s.requests.CreateMessageRequest(r.Context(), row); err != nil {
		logger.Warn().Err(err).Str("op", op).Msg("failed to record message request")
	}

	callCtx, cancel := context.WithTimeout(r.Context(), s.replyTimeout)
	defer cancel()

	reply, err := s.bus.Call(callCtx, op, header, body)
	if err != nil {
		s.complete(row, nil, &store.ErrorPayload{
			Kind:    string(fault.KindOf(err)),
			Message: fault.MessageOf(err),
		})
		return nil, err
	}

	var response any
	if jsonErr := json.Unmarshal(reply, &response); jsonErr != nil {
		response = string(reply)
	}
	s.complete(row, response, nil)
	return reply, nil
}

// complete closes a MessageRequest on a fresh context; the request context
// is often already expired when an error is booked.
func (s *Server) complete(row *store.MessageRequest, response any, errPayload *store.ErrorPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()
	if err := s.requests.CompleteMessageRequest(ctx, row.ID, response, errPayload); err != nil {
		logger.Warn().Err(err).Str("op", row.Operation).Msg("failed to complete message request")
	}
}

func readArchivePart(r *http.Request, field string) ([]byte, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, fault.Wrap(fault.BadInput, err, "request is not valid multipart form data")
	}

	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fault.New(fault.BadInput, "missing archive part %q", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fault.Wrap(fault.BadInput, err, "reading archive part %q", field)
	}
	if len(data) == 0 {
		return nil, fault.New(fault.BadInput, "archive part %q is empty", field)
	}
	return data, nil
}

func readConfigPart(r *http.Request, field string) (projectConfig, error) {
	var cfg projectConfig
	raw := r.FormValue(field)
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fault.Wrap(fault.BadInput, err, "invalid %s JSON", field)
	}
	return cfg, nil
}

func writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	writeJSON(w, fault.HTTPStatus(kind), map[string]string{
		"kind":    string(kind),
		"message": fault.MessageOf(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn().Err(err).Msg("failed to encode response")
	}
}

// writeRawJSON relays a reply body that is already JSON.
func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.Warn().Err(err).Msg("failed to write response")
	}
}

// requestLogger logs one line per request in the service's structured
// format.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}
