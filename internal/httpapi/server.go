package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/config"
	"github.com/ent0n29/outreach/internal/events"
	"github.com/ent0n29/outreach/internal/execution"
	"github.com/ent0n29/outreach/internal/intake"
	"github.com/ent0n29/outreach/internal/observability"
	"github.com/ent0n29/outreach/internal/reliability"
)

type Server struct {
	cfg      config.Config
	queue    intake.Queue
	executor *execution.Service
	hub      *events.Hub
	metrics  *observability.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, queue intake.Queue, executor *execution.Service, hub *events.Hub, metrics *observability.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if hub == nil {
		hub = events.NewHub(log)
	}
	return &Server{
		cfg:      cfg,
		queue:    queue,
		executor: executor,
		hub:      hub,
		metrics:  metrics,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless explicitly relaxed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/workflows", s.handleSubmitWorkflow)
		r.Get("/workflows", s.handleDrainWorkflows)
		r.Post("/execute-task", s.handleExecuteTask)
		r.Get("/execute-task", s.handleExecutorHealth)
		r.Get("/executions", s.handleListExecutions)
		r.Post("/task-completions", s.handleReportCompletion)
	})
	r.Get("/ws", s.handleStreamWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"pending":          s.queue.Len(),
		"execution_store":  s.storeMode(),
		"stream_listeners": s.hub.SubscriberCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.queue == nil || s.executor == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"execution_store": s.storeMode(),
	})
}

func (s *Server) storeMode() string {
	if s.executor == nil {
		return "disabled"
	}
	return s.executor.StoreMode()
}

type failureResponse struct {
	Success   bool             `json:"success"`
	Error     string           `json:"error"`
	Code      reliability.Kind `json:"code"`
	Retryable bool             `json:"retryable"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind onto the HTTP status callers observe.
// Validation failures are 400; everything else, including unknown task
// kinds, is reported as a server failure.
func statusFor(kind reliability.Kind) int {
	switch kind {
	case reliability.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func failureFrom(err error) (int, failureResponse) {
	kind := reliability.KindOf(err)
	return statusFor(kind), failureResponse{
		Success:   false,
		Error:     err.Error(),
		Code:      kind,
		Retryable: reliability.IsRetryable(kind),
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, route string, err error) {
	status, body := failureFrom(err)
	if status >= http.StatusInternalServerError && body.Code == reliability.KindInternal {
		s.log.Error("request failed", zap.String("route", route), zap.Error(err))
	}
	respondJSON(w, status, body)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
