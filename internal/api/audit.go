package api

import (
	"io"
	"log"
	"strings"
	"time"

	"github.com/MJE43/arenacore/internal/engine"
)

// AuditLogger records admin actions and rejected claims. Secret-looking
// fields are replaced by a short hash before they reach the log.
type AuditLogger struct {
	logger *log.Logger
}

// NewAuditLogger wraps logger; nil discards.
func NewAuditLogger(logger *log.Logger) *AuditLogger {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &AuditLogger{logger: logger}
}

// LogSecurityEvent logs a rejected or suspicious request.
func (al *AuditLogger) LogSecurityEvent(requestID, eventType, description string, context map[string]any, remoteAddr string) {
	al.logger.Printf(
		"security_event request_id=%s type=%s description=%q context=%+v remote_addr=%s version=%s timestamp=%s",
		requestID, eventType, description, sanitizeContext(context), remoteAddr, ServiceVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogAuditEvent logs a state-changing admin or settlement action.
func (al *AuditLogger) LogAuditEvent(requestID, action, resource, outcome string, details map[string]any) {
	al.logger.Printf(
		"audit_event request_id=%s action=%s resource=%s outcome=%s details=%+v version=%s timestamp=%s",
		requestID, action, resource, outcome, sanitizeContext(details), ServiceVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

func sanitizeContext(context map[string]any) map[string]any {
	if context == nil {
		return nil
	}
	out := make(map[string]any, len(context))
	for key, value := range context {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "key") || strings.Contains(lower, "signature") || strings.Contains(lower, "secret") {
			if s, ok := value.(string); ok {
				out[key+"_hash"] = engine.HashSeed(s)
			} else {
				out[key] = "[redacted]"
			}
			continue
		}
		out[key] = value
	}
	return out
}
