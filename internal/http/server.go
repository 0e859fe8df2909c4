package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/koreops-ai/sas-api/internal/log"
	"github.com/koreops-ai/sas-api/pkg/models"
	"github.com/koreops-ai/sas-api/pkg/notify"
	"github.com/koreops-ai/sas-api/pkg/queue"
	"github.com/koreops-ai/sas-api/pkg/scheduler"
	"github.com/koreops-ai/sas-api/pkg/storage"
	"github.com/pkg/errors"
)

// Server exposes the orchestration core over HTTP. Authentication is an
// external concern; the actor identity arrives in the X-Actor-ID header.
type Server struct {
	sched *scheduler.Scheduler
	queue *queue.Service
	feed  *notify.Feed
}

func NewServer(sched *scheduler.Scheduler, queue *queue.Service, feed *notify.Feed) *Server {
	return &Server{sched: sched, queue: queue, feed: feed}
}

// Router wires all routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/workflows", s.createWorkflowHandler).Methods(http.MethodPost)
	r.HandleFunc("/workflows", s.listWorkflowsHandler).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id:[0-9]+}", s.getWorkflowHandler).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id:[0-9]+}/advance", s.advanceHandler).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id:[0-9]+}/cancel", s.cancelHandler).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id:[0-9]+}/events", s.eventsHandler).Methods(http.MethodGet)
	r.HandleFunc("/checkpoints/{id}/resolve", s.resolveHandler).Methods(http.MethodPost)
	return r
}

// StartServer runs the HTTP API on the given port.
func StartServer(port string, sched *scheduler.Scheduler, queue *queue.Service, feed *notify.Feed) error {
	srv := NewServer(sched, queue, feed)
	log.GetLogger().Infof("Starting SAS server on :%s", port)
	return http.ListenAndServe(":"+port, srv.Router())
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createWorkflowRequest struct {
	Name          string   `json:"name"`
	Owner         string   `json:"owner"`
	ModuleTypes   []string `json:"module_types"`
	RequireReview bool     `json:"require_review"`
	Queued        bool     `json:"queued"`   // Enqueue units for out-of-process workers
	Priority      int      `json:"priority"` // Queue priority, higher runs first
}

func (s *Server) createWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}
	id, err := s.sched.CreateWorkflow(req.Name, req.Owner, req.ModuleTypes, req.RequireReview)
	if err != nil {
		log.GetLogger().Errorf("Failed to create workflow: %v", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Queued {
		if _, err := s.queue.Enqueue(r.Context(), id, req.ModuleTypes, req.Priority); err != nil {
			log.GetLogger().Errorf("Failed to enqueue units for workflow %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	wf, err := s.sched.GetWorkflow(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) listWorkflowsHandler(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.sched.ListWorkflows()
	if err != nil {
		log.GetLogger().Errorf("Failed to list workflows: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (s *Server) getWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	wf, err := s.sched.GetWorkflow(pathID(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) advanceHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.sched.Advance(r.Context(), pathID(r))
	if err != nil {
		log.GetLogger().Errorf("Advance failed: %v", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if err := s.sched.Cancel(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	wf, err := s.sched.GetWorkflow(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

type resolveRequest struct {
	Action      string                 `json:"action"`
	Comment     string                 `json:"comment,omitempty"`
	Adjustments map[string]interface{} `json:"adjustments,omitempty"`
}

func (s *Server) resolveHandler(w http.ResponseWriter, r *http.Request) {
	checkpointID := mux.Vars(r)["id"]
	actorID := r.Header.Get("X-Actor-ID")
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}
	resolution, err := s.sched.Resolve(r.Context(), checkpointID, actorID, req.Action, req.Comment, req.Adjustments)
	if err != nil {
		log.GetLogger().Errorf("Failed to resolve checkpoint %s: %v", checkpointID, err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resolution)
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid 'since' timestamp: %v", err))
			return
		}
		since = parsed
	}
	events, err := s.feed.Poll(r.Context(), pathID(r), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrWorkflowTerminal):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
