package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/arenacore/internal/tournament"
)

func (s *Server) handleCreateTournament(w http.ResponseWriter, r *http.Request) {
	var spec tournament.Spec
	if !s.decodeJSON(w, r, &spec) {
		return
	}
	t, err := s.deps.Tournaments.Create(r.Context(), spec)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTournament(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tournaments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleJoinTournament(w http.ResponseWriter, r *http.Request) {
	var req tournament.JoinRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.Tournaments.Join(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

// handleResumeTournament finishes a bracket that stalled after it started.
func (s *Server) handleResumeTournament(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.deps.Tournaments.ResumeBracket(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.audit.LogAuditEvent(middleware.GetReqID(r.Context()), "tournament_resume", id, "success",
		map[string]any{"prize_failures": len(report.PrizeFailures)})
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCancelTournament(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.deps.Tournaments.Cancel(r.Context(), id)
	if err != nil && t.ID == "" {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	// A cancelled tournament with failed refunds is still cancelled; the
	// affected entries carry prize_status "failed".
	outcome := "success"
	details := map[string]any{"entries": len(t.Entries)}
	if err != nil {
		outcome = "partial"
		details["refund_error"] = err.Error()
	}
	s.audit.LogAuditEvent(middleware.GetReqID(r.Context()), "tournament_cancel", id, outcome, details)
	s.writeJSON(w, http.StatusOK, t)
}
