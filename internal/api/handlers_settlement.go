package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/arenacore/internal/runs"
	"github.com/MJE43/arenacore/internal/settlement"
	"github.com/MJE43/arenacore/internal/sim"
)

func (s *Server) handleListModes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ModesResponse{
		Modes:          sim.ListModes(),
		Arenas:         s.deps.Arenas.Names(),
		ServiceVersion: ServiceVersion,
	})
}

// handleSettleBattle answers 201 for a fresh settlement, 200 for a replay of
// a finished one and 202 while the first attempt is still running.
func (s *Server) handleSettleBattle(w http.ResponseWriter, r *http.Request) {
	var req settlement.BattleRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	id, err := requestID(r, req.RequestID)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	req.RequestID = id

	out, err := s.deps.Settlement.SettleBattle(r.Context(), req)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, outcomeStatus(out.Run, out.Replayed), out)
}

func outcomeStatus(run runs.Record, replayed bool) int {
	switch {
	case !replayed:
		return http.StatusCreated
	case run.Status == runs.StatusInProgress:
		return http.StatusAccepted
	default:
		return http.StatusOK
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Tracker.Get(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleVerifyBattle(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Settlement.VerifyBattle(r.Context(), chi.URLParam(r, "resultID"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSimulateRace(w http.ResponseWriter, r *http.Request) {
	var req settlement.RaceRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	id, err := requestID(r, req.RequestID)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	req.RequestID = id

	res, err := s.deps.Settlement.SimulateRace(req)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
