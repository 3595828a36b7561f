// Package api exposes the settlement core over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/economy"
	"github.com/MJE43/arenacore/internal/journal"
	"github.com/MJE43/arenacore/internal/runs"
	"github.com/MJE43/arenacore/internal/settlement"
	"github.com/MJE43/arenacore/internal/sim"
	"github.com/MJE43/arenacore/internal/tournament"
	"github.com/MJE43/arenacore/internal/vault"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP layer forwards to.
type Deps struct {
	Settlement  *settlement.Service
	Tracker     *runs.Tracker
	Tournaments *tournament.Orchestrator
	Issuer      *vault.Issuer
	Vault       *vault.Vault
	AssetID     common.Address

	Ledger   economy.Ledger
	Balances economy.BalanceReader
	Configs  economy.ConfigWriter
	Allowed  economy.AllowedKeys
	Arenas   sim.Arenas

	Journal  journal.Recorder
	Database Pinger
}

// Server handles HTTP requests.
type Server struct {
	deps         Deps
	errorHandler *ErrorHandler
	audit        *AuditLogger
	logger       *log.Logger
	startTime    time.Time
	timeout      time.Duration
}

// Option tunes a Server.
type Option func(*Server)

// WithLogger replaces the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAuditLogger replaces the audit logger.
func WithAuditLogger(l *log.Logger) Option {
	return func(s *Server) { s.audit = NewAuditLogger(l) }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// NewServer creates a new API server.
func NewServer(deps Deps, opts ...Option) *Server {
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.Arenas == nil {
		deps.Arenas = sim.DefaultArenas()
	}
	s := &Server{
		deps:      deps,
		logger:    log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile),
		audit:     NewAuditLogger(log.New(os.Stdout, "[AUDIT] ", log.LstdFlags|log.LUTC)),
		startTime: time.Now(),
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.errorHandler = NewErrorHandler(s.logger, s.audit)
	return s
}

// Routes sets up the HTTP routes with middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/modes", s.handleListModes)

		r.Post("/battles", s.handleSettleBattle)
		r.Get("/runs/{requestID}", s.handleGetRun)
		r.Post("/verify/battle/{resultID}", s.handleVerifyBattle)
		r.Post("/races/simulate", s.handleSimulateRace)

		r.Post("/tournaments", s.handleCreateTournament)
		r.Get("/tournaments/{id}", s.handleGetTournament)
		r.Post("/tournaments/{id}/entries", s.handleJoinTournament)
		r.Post("/tournaments/{id}/cancel", s.handleCancelTournament)
		r.Post("/tournaments/{id}/resume", s.handleResumeTournament)

		r.Post("/claims", s.handleIssueClaim)
		r.Post("/vault/submit", s.handleSubmitTx)

		r.Get("/balances/{ownerID}", s.handleGetBalance)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/economy", s.handleGetEconomy)
			r.Put("/economy", s.handlePutEconomy)
			r.Post("/balances/{ownerID}/credit", s.handleCreditBalance)
			r.Post("/vault/deposit", s.handleVaultDeposit)
		})
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Service-Version", ServiceVersion)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed status=%d err=%v", status, err)
	}
}

// decodeJSON reads a size-bounded JSON body into dst.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorHandler.HandleValidationError(w, r, "body", "request body too large")
			return false
		}
		if errors.Is(err, io.EOF) {
			s.errorHandler.HandleValidationError(w, r, "body", "request body is empty")
			return false
		}
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// requestID picks the Idempotency-Key header over the body field. Both set
// and different is a validation error.
func requestID(r *http.Request, bodyID string) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	bodyID = strings.TrimSpace(bodyID)
	switch {
	case header != "" && bodyID != "" && header != bodyID:
		return "", apperr.Validation("request_id", "Idempotency-Key and request_id disagree")
	case header != "":
		return header, nil
	default:
		return bodyID, nil
	}
}
