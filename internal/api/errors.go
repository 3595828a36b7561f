package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/arenacore/internal/apperr"
)

// ErrorHandler turns domain errors into JSON responses and logs them.
type ErrorHandler struct {
	logger *log.Logger
	audit  *AuditLogger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *log.Logger, audit *AuditLogger) *ErrorHandler {
	return &ErrorHandler{logger: logger, audit: audit}
}

// HandleError writes err with the status its code maps to. Errors without a
// domain code are reported as INTERNAL and their text stays in the log.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())
	code := apperr.CodeOf(err)
	status := code.HTTPStatus()

	resp := ErrorResponse{
		Code:      code,
		Message:   "internal error",
		Retryable: code.Retryable(),
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	var de *apperr.Error
	if errors.As(err, &de) && code != apperr.CodeInternal {
		resp.Message = de.Message
		if len(de.Metadata) > 0 {
			resp.Context = make(map[string]any, len(de.Metadata))
			for k, v := range de.Metadata {
				resp.Context[k] = v
			}
		}
	}

	if GetErrorCategory(code) == CategoryClaim {
		eh.audit.LogSecurityEvent(requestID, "claim_rejected", string(code), resp.Context, r.RemoteAddr)
	}
	eh.logError(r, resp, status, err)
	eh.writeErrorResponse(w, status, resp)
}

// HandleValidationError reports a malformed request body or parameter.
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	eh.HandleError(w, r, apperr.Validation(field, message))
}

func (eh *ErrorHandler) logError(r *http.Request, resp ErrorResponse, status int, cause error) {
	level := "ERROR"
	if status < 500 {
		level = "WARN"
	}
	eh.logger.Printf(
		"error_occurred level=%s code=%s category=%s status=%d request_id=%s method=%s path=%s message=%q cause=%q",
		level, resp.Code, GetErrorCategory(resp.Code), status, resp.RequestID, r.Method, r.URL.Path, resp.Message, cause.Error(),
	)
}

func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Service-Version", ServiceVersion)
	w.Header().Set("X-Error-Code", string(resp.Code))
	if resp.Retryable {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		eh.logger.Printf("error_response_encode_failed request_id=%s err=%v", resp.RequestID, err)
	}
}

// RecoveryHandler turns a panic into a 500 with a logged stack-free record.
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.logger.Printf("panic_recovered request_id=%s path=%s method=%s panic=%v",
					requestID, r.URL.Path, r.Method, rvr)
				eh.writeErrorResponse(w, http.StatusInternalServerError, ErrorResponse{
					Code:      apperr.CodeInternal,
					Message:   "internal error",
					RequestID: requestID,
					Timestamp: time.Now().UTC().Format(time.RFC3339),
					Context:   map[string]any{"panic": fmt.Sprintf("%v", rvr)},
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
