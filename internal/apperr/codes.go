// Package apperr provides the error taxonomy shared by every settlement component.
package apperr

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeInternal represents an unclassified failure.
	CodeInternal Code = "INTERNAL"

	// Input errors
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"

	// Idempotency and lifecycle errors
	CodeConflict Code = "CONFLICT"

	// Ledger errors
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeEmissionCapExceeded Code = "EMISSION_CAP_EXCEEDED"

	// Claim errors
	CodeSignatureInvalid         Code = "SIGNATURE_INVALID"
	CodeClaimExpired             Code = "CLAIM_EXPIRED"
	CodeReplayedSeqno            Code = "REPLAYED_SEQNO"
	CodeSenderMismatch           Code = "SENDER_MISMATCH"
	CodeVaultInsufficientReserve Code = "VAULT_INSUFFICIENT_RESERVE"

	// Transient errors
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeReplayedSeqno:
		return http.StatusConflict
	case CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case CodeEmissionCapExceeded:
		return http.StatusTooManyRequests
	case CodeSignatureInvalid:
		return http.StatusUnauthorized
	case CodeSenderMismatch:
		return http.StatusForbidden
	case CodeClaimExpired:
		return http.StatusGone
	case CodeVaultInsufficientReserve, CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may safely repeat the same request.
func (c Code) Retryable() bool {
	return c == CodeStorageUnavailable
}
