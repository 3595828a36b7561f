package api

import (
	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/economy"
	"github.com/MJE43/arenacore/internal/sim"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code      apperr.Code    `json:"code"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Retryable bool           `json:"retryable"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// ErrorCategory groups codes for log filtering.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryLedger     ErrorCategory = "ledger"
	CategoryClaim      ErrorCategory = "claim"
	CategorySystem     ErrorCategory = "system"
)

// GetErrorCategory returns the category for an error code.
func GetErrorCategory(code apperr.Code) ErrorCategory {
	switch code {
	case apperr.CodeValidation, apperr.CodeNotFound, apperr.CodeConflict:
		return CategoryValidation
	case apperr.CodeInsufficientFunds, apperr.CodeEmissionCapExceeded:
		return CategoryLedger
	case apperr.CodeSignatureInvalid, apperr.CodeClaimExpired, apperr.CodeReplayedSeqno,
		apperr.CodeSenderMismatch, apperr.CodeVaultInsufficientReserve:
		return CategoryClaim
	default:
		return CategorySystem
	}
}

// VersionInfo contains service version information.
type VersionInfo struct {
	ServiceVersion string `json:"service_version"`
	GitCommit      string `json:"git_commit,omitempty"`
	BuildTime      string `json:"build_time,omitempty"`
}

// ModesResponse lists the simulation modes.
type ModesResponse struct {
	Modes          []sim.ModeSpec `json:"modes"`
	Arenas         []string       `json:"arenas"`
	ServiceVersion string         `json:"service_version"`
}

// IssueClaimRequest is the body of POST /claims. Recipient is a hex address.
type IssueClaimRequest struct {
	RequestID string `json:"request_id"`
	OwnerID   string `json:"owner_id"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// SubmitTxRequest carries a hex-encoded ClaimTx.
type SubmitTxRequest struct {
	Tx string `json:"tx"`
}

// DepositRequest funds the vault reserve. Amount is a decimal or 0x string.
type DepositRequest struct {
	AssetID string `json:"asset_id,omitempty"`
	Amount  string `json:"amount"`
}

// CreditRequest is an admin grant of off-chain balance.
type CreditRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// BalanceResponse reports one owner's balance.
type BalanceResponse struct {
	OwnerID string `json:"owner_id"`
	Balance int64  `json:"balance"`
}

// EconomyConfigResponse is the sanitized economy configuration.
type EconomyConfigResponse struct {
	Config economy.CapConfiguration `json:"config"`
}
