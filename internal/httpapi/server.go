package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/metrics"
	"github.com/verdantworks/verdant/internal/notify"
	"github.com/verdantworks/verdant/internal/persistence"
	"github.com/verdantworks/verdant/internal/scheduler"
)

// Server exposes the pipeline's operational surface: status, metrics
// exposition, the alert subscription socket, insight queries and
// acknowledgment. The end-user web application lives elsewhere.
type Server struct {
	sched  *scheduler.Scheduler
	repo   persistence.InsightRepo
	hub    *notify.Hub
	server *http.Server
}

// New builds the server and its routes.
func New(listen string, sched *scheduler.Scheduler, repo persistence.InsightRepo, hub *notify.Hub, reg *metrics.Registry) *Server {
	s := &Server{sched: sched, repo: repo, hub: hub}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", hub.ServeWS).Methods(http.MethodGet)
	r.HandleFunc("/insights", s.handleQueryInsights).Methods(http.MethodGet)
	r.HandleFunc("/insights/{id}/ack", s.handleAcknowledge).Methods(http.MethodPost)

	s.server = &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	log.Info().Str("listen", s.server.Addr).Msg("http api listening")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleQueryInsights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := persistence.InsightFilter{
		UnitID:   q.Get("unit"),
		Type:     domain.InsightType(q.Get("type")),
		Severity: domain.Severity(q.Get("severity")),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		filter.Range.From = since
	}
	if v := q.Get("until"); v != "" {
		until, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until timestamp")
			return
		}
		filter.Range.To = until
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	insights, err := s.repo.Query(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("insight query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights, "count": len(insights)})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		ActorID string `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id required")
		return
	}

	err := s.repo.Acknowledge(r.Context(), id, body.ActorID)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		writeError(w, http.StatusNotFound, "insight not found")
	case err != nil:
		log.Error().Err(err).Str("insight", id).Msg("acknowledge failed")
		writeError(w, http.StatusInternalServerError, "acknowledge failed")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
