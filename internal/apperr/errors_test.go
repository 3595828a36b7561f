package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeConflict, "request owned by another actor")
	if !errors.Is(err, ErrConflict) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("errors.Is matched a different code")
	}
}

func TestCodeOfWrapped(t *testing.T) {
	inner := Wrap(CodeStorageUnavailable, "insert run", errors.New("database is locked"))
	outer := fmt.Errorf("begin: %w", inner)
	if got := CodeOf(outer); got != CodeStorageUnavailable {
		t.Errorf("CodeOf() = %s, want %s", got, CodeStorageUnavailable)
	}
	if !CodeOf(outer).Retryable() {
		t.Error("storage errors should be retryable")
	}
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Error("plain errors should map to INTERNAL")
	}
	if CodeOf(nil) != "" {
		t.Error("nil error should have empty code")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeValidation:          http.StatusBadRequest,
		CodeConflict:            http.StatusConflict,
		CodeInsufficientFunds:   http.StatusPaymentRequired,
		CodeEmissionCapExceeded: http.StatusTooManyRequests,
		CodeSignatureInvalid:    http.StatusUnauthorized,
		CodeClaimExpired:        http.StatusGone,
		CodeReplayedSeqno:       http.StatusConflict,
		CodeSenderMismatch:      http.StatusForbidden,
		CodeStorageUnavailable:  http.StatusServiceUnavailable,
		CodeInternal:            http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}

func TestValidationMetadata(t *testing.T) {
	err := Validation("arena", "unknown arena")
	if err.Metadata["field"] != "arena" {
		t.Errorf("field metadata = %q", err.Metadata["field"])
	}
	if err.Error() != "unknown arena" {
		t.Errorf("Error() = %q", err.Error())
	}
}
