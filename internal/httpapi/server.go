// Package httpapi serves the agent over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/metric"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/capability"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/orchestrator"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

var chatExample = map[string]any{"message": "Help me plan my product launch"}

// Agent is what the HTTP layer needs from the orchestrator.
type Agent interface {
	Status() orchestrator.Status
	Registry() *capability.Registry
	ProcessMessage(ctx context.Context, text string, msgContext map[string]any) (*domain.Response, error)
	ExecuteCapability(ctx context.Context, name string, req capability.Request) (capability.Result, error)
	ProjectStatus(ctx context.Context, id string) (capability.Result, error)
	CompleteTask(ctx context.Context, id string) (capability.Result, error)
	ListTools(ctx context.Context) ([]capability.ToolInfo, error)
	Conversation(ctx context.Context, id string) (*domain.Conversation, error)
}

type Server struct {
	agent     Agent
	router    *mux.Router
	logger    *slog.Logger
	meter     metric.Meter
	endpoints []string
}

func New(agent Agent, logger *slog.Logger, meter metric.Meter) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if meter == nil {
		_, meter = telemetry.Noop()
	}
	s := &Server{
		agent:  agent,
		router: mux.NewRouter(),
		logger: logger,
		meter:  meter,
	}
	s.routes()
	return s
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.requestID(s.recoverPanics(s.accessLog(s.cors(s.limitBody(s.router)))))
}

func (s *Server) handle(method, path string, h http.HandlerFunc) {
	s.router.HandleFunc(path, h).Methods(method)
	s.endpoints = append(s.endpoints, method+" "+path)
}

func (s *Server) routes() {
	s.handle(http.MethodGet, "/health", s.handleHealth)
	s.handle(http.MethodPost, "/chat", s.handleChat)
	s.handle(http.MethodGet, "/workshops", s.handleCapabilities)
	s.handle(http.MethodGet, "/capabilities", s.handleCapabilities)
	s.handle(http.MethodPost, "/capabilities/{name}", s.handleInvokeByName)

	for _, c := range s.agent.Registry().All() {
		s.handle(http.MethodPost, c.Route(), s.invokeHandler(c.Name()))
	}

	s.handle(http.MethodGet, "/workshop1/projects/{id}", s.handleProject)
	s.handle(http.MethodPost, "/workshop1/projects/{id}/complete-task", s.handleCompleteTask)
	s.handle(http.MethodGet, "/workshop5/tools", s.handleListTools)
	s.handle(http.MethodGet, "/conversations/{id}", s.handleConversation)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Status())
}

type chatRequest struct {
	Message *string        `json:"message"`
	Context map[string]any `json:"context"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDecodeError(w, err, chatExample)
		return
	}
	if req.Message == nil || strings.TrimSpace(*req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Message is required",
			"details": "message must be a non-empty string",
			"example": chatExample,
		})
		return
	}

	resp, err := s.agent.ProcessMessage(r.Context(), *req.Message, req.Context)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type capabilityInfo struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Endpoint    string   `json:"endpoint"`
	Status      string   `json:"status"`
	Actions     []string `json:"actions,omitempty"`
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	all := s.agent.Registry().All()
	list := make([]capabilityInfo, 0, len(all))
	for i, c := range all {
		info := capabilityInfo{
			ID:          i + 1,
			Name:        c.Name(),
			Description: c.Description(),
			Endpoint:    "POST " + c.Route(),
			Status:      "ready",
		}
		if rd, ok := c.(capability.Readiness); ok && !rd.Ready() {
			info.Status = "initializing"
		}
		if a, ok := c.(interface{ Actions() []string }); ok {
			info.Actions = a.Actions()
		}
		list = append(list, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": list, "total": len(list)})
}

func (s *Server) invokeHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.invoke(w, r, name)
	}
}

func (s *Server) handleInvokeByName(w http.ResponseWriter, r *http.Request) {
	s.invoke(w, r, mux.Vars(r)["name"])
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, name string) {
	var req capability.Request
	if err := decodeBody(r, &req); err != nil {
		s.writeDecodeError(w, err, nil)
		return
	}
	if req == nil {
		req = capability.Request{}
	}

	result, err := s.agent.ExecuteCapability(r.Context(), name, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	result, err := s.agent.ProjectStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	result, err := s.agent.CompleteTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.agent.ListTools(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools, "total": len(tools)})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.agent.Conversation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":               "Not found",
		"message":             fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path),
		"available_endpoints": s.endpoints,
	})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error":   "Method not allowed",
		"message": fmt.Sprintf("%s is not supported on %s", r.Method, r.URL.Path),
	})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) writeDecodeError(w http.ResponseWriter, err error, example any) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"error":   "Request body too large",
			"details": fmt.Sprintf("limit is %d bytes", tooLarge.Limit),
		})
		return
	}
	body := map[string]any{"error": "Invalid JSON", "details": err.Error()}
	if example != nil {
		body["example"] = example
	}
	writeJSON(w, http.StatusBadRequest, body)
}

// writeError maps capability and storage errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *capability.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid request",
			"details": verr.Message,
			"example": verr.Example,
		})
	case errors.Is(err, capability.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request", "details": err.Error()})
	case errors.Is(err, capability.ErrNotInitialized):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	case errors.Is(err, capability.ErrUnknownCapability), errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not found", "message": err.Error()})
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			"request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Internal server error",
			"message": err.Error(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
