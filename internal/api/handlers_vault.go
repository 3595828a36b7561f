package api

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/vault"
)

func (s *Server) handleIssueClaim(w http.ResponseWriter, r *http.Request) {
	var body IssueClaimRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}
	id, err := requestID(r, body.RequestID)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	recipient, err := vault.ParseAddress("recipient", strings.TrimSpace(body.Recipient))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	out, err := s.deps.Issuer.Issue(r.Context(), vault.IssueRequest{
		RequestID: id,
		OwnerID:   body.OwnerID,
		Recipient: recipient,
		Amount:    body.Amount,
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, outcomeStatus(out.Run, out.Replayed), out)
}

// handleSubmitTx redeems a hex-encoded ClaimTx. The sender is recovered from
// the transaction's own signature, never taken from the request.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var body SubmitTxRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}
	raw := strings.TrimSpace(body.Tx)
	if raw == "" {
		s.errorHandler.HandleValidationError(w, r, "tx", "tx is required")
		return
	}
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	payload, err := hexutil.Decode(raw)
	if err != nil {
		s.errorHandler.HandleError(w, r, apperr.Wrap(apperr.CodeValidation, "tx is not valid hex", err))
		return
	}

	receipt, err := s.deps.Vault.ApplyTx(r.Context(), payload)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, r *http.Request) {
	var body DepositRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}
	asset := s.deps.AssetID
	if strings.TrimSpace(body.AssetID) != "" {
		parsed, err := vault.ParseAddress("asset_id", strings.TrimSpace(body.AssetID))
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		asset = parsed
	}
	amount, err := vault.ParseAmount(strings.TrimSpace(body.Amount))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if err := s.deps.Vault.Deposit(r.Context(), asset, amount); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	s.audit.LogAuditEvent(middleware.GetReqID(r.Context()), "vault_deposit", s.deps.Vault.ID().Hex(), "success",
		map[string]any{"asset_id": asset.Hex(), "amount": amount.Dec()})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"vault_id": s.deps.Vault.ID().Hex(),
		"asset_id": asset.Hex(),
		"amount":   amount.Dec(),
	})
}
