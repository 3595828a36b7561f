package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/economy"
	"github.com/MJE43/arenacore/internal/journal"
)

func (s *Server) handleGetEconomy(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Ledger.Config(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, EconomyConfigResponse{Config: cfg})
}

// handlePutEconomy validates the payload shape, drops unknown keys and bad
// values, and stores what is left. The response is what was stored.
func (s *Server) handlePutEconomy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "request body unreadable or too large")
		return
	}
	raw, err := economy.ParseRaw(body)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	cfg := economy.Sanitize(raw, s.deps.Allowed)
	if err := s.deps.Configs.SaveConfig(r.Context(), cfg); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	requestID := middleware.GetReqID(r.Context())
	if jerr := s.deps.Journal.Record(journal.KindEconomyConfig, cfg); jerr != nil {
		s.logger.Printf("journal_write_failed kind=%s request_id=%s err=%v", journal.KindEconomyConfig, requestID, jerr)
	}
	s.audit.LogAuditEvent(requestID, "economy_config_update", "economy", "success", map[string]any{
		"caps":    len(cfg.Caps),
		"windows": len(cfg.Windows),
		"dropped": (len(raw.Caps) + len(raw.Windows)) - (len(cfg.Caps) + len(cfg.Windows)),
	})
	s.writeJSON(w, http.StatusOK, EconomyConfigResponse{Config: cfg})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "ownerID")
	bal, err := s.deps.Balances.BalanceOf(r.Context(), owner)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{OwnerID: owner, Balance: bal})
}

func (s *Server) handleCreditBalance(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(chi.URLParam(r, "ownerID"))
	if owner == "" {
		s.errorHandler.HandleValidationError(w, r, "owner_id", "owner id is required")
		return
	}
	var body CreditRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}
	if body.Amount <= 0 {
		s.errorHandler.HandleError(w, r, apperr.Validation("amount", "amount must be positive"))
		return
	}
	reason := body.Reason
	if reason == "" {
		reason = "admin_grant"
	}
	// Grants are minted under the "admin" system arena, so its cap applies.
	ec := economy.Context{OwnerID: owner, Arena: "admin", Reason: reason}
	res, err := s.deps.Ledger.TryEmit(r.Context(), body.Amount, ec)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if !res.OK {
		s.errorHandler.HandleError(w, r, apperr.WithMetadata(apperr.CodeEmissionCapExceeded, "grant declined",
			map[string]string{"reason": res.Reason}))
		return
	}
	if err := s.deps.Ledger.Credit(r.Context(), body.Amount, ec); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	bal, err := s.deps.Balances.BalanceOf(r.Context(), owner)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.audit.LogAuditEvent(middleware.GetReqID(r.Context()), "balance_credit", owner, "success",
		map[string]any{"amount": body.Amount, "reason": reason})
	s.writeJSON(w, http.StatusOK, BalanceResponse{OwnerID: owner, Balance: bal})
}
