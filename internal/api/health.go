package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HealthStatus represents the overall health status.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse is the body of GET /health.
type HealthCheckResponse struct {
	Status         HealthStatus           `json:"status"`
	Timestamp      string                 `json:"timestamp"`
	ServiceVersion string                 `json:"service_version"`
	GitCommit      string                 `json:"git_commit,omitempty"`
	BuildTime      string                 `json:"build_time,omitempty"`
	Uptime         string                 `json:"uptime"`
	Checks         map[string]HealthCheck `json:"checks"`
	System         SystemInfo             `json:"system"`
	RequestID      string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check.
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains runtime information.
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	checks := map[string]HealthCheck{
		"database": s.checkDatabase(r.Context()),
		"services": s.checkServices(),
	}
	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	status := http.StatusOK
	if overall == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, HealthCheckResponse{
		Status:         overall,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		ServiceVersion: ServiceVersion,
		GitCommit:      GitCommit,
		BuildTime:      BuildTime,
		Uptime:         time.Since(s.startTime).String(),
		Checks:         checks,
		System:         systemInfo(),
		RequestID:      requestID,
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alive":           true,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"service_version": ServiceVersion,
		"uptime":          time.Since(s.startTime).String(),
		"request_id":      middleware.GetReqID(r.Context()),
	})
}

func (s *Server) checkDatabase(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Status: HealthStatusHealthy, Message: "database reachable"}
	if s.deps.Database == nil {
		check = HealthCheck{Status: HealthStatusDegraded, Message: "no database configured, using memory stores"}
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.deps.Database.Ping(pingCtx); err != nil {
			check = HealthCheck{Status: HealthStatusUnhealthy, Message: err.Error()}
		}
	}
	check.LastChecked = time.Now().UTC().Format(time.RFC3339)
	check.Duration = time.Since(start).String()
	return check
}

func (s *Server) checkServices() HealthCheck {
	check := HealthCheck{Status: HealthStatusHealthy, Message: "all services wired"}
	switch {
	case s.deps.Settlement == nil || s.deps.Tracker == nil:
		check = HealthCheck{Status: HealthStatusUnhealthy, Message: "settlement not initialized"}
	case s.deps.Tournaments == nil || s.deps.Issuer == nil || s.deps.Vault == nil:
		check = HealthCheck{Status: HealthStatusDegraded, Message: "some services not initialized"}
	}
	check.LastChecked = time.Now().UTC().Format(time.RFC3339)
	return check
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		MemoryAlloc:   m.Alloc,
		GCCycles:      m.NumGC,
	}
}
