package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/http/response"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse contains health check data.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// handleHealthCheck reports overall server health with per-component
// checks.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]ComponentHealth)
	overall := "healthy"

	dbHealth := s.checkDatabase(r.Context())
	components["database"] = dbHealth
	if dbHealth.Status != "healthy" {
		overall = "unhealthy"
	}

	searchHealth := s.checkSearchIndex(r.Context())
	components["search"] = searchHealth
	if searchHealth.Status == "degraded" && overall == "healthy" {
		overall = "degraded"
	}

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	response.JSON(w, status, HealthResponse{
		Status:     overall,
		Components: components,
	}, s.logger)
}

// checkDatabase verifies BadgerDB is accessible.
func (s *Server) checkDatabase(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "database not configured",
		}
	}

	start := time.Now()

	// Quick read to verify the DB answers. A missing book is fine, the
	// read still exercised the store.
	_, err := s.store.GetBook(ctx, "health-check")
	latency := time.Since(start)

	if err != nil && !errors.Is(err, store.ErrBookNotFound) {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "database read failed",
		}
	}

	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
	}
}

// checkSearchIndex reports whether the search snapshot exists. An absent
// snapshot is degraded, not unhealthy: it rebuilds on the next library
// change.
func (s *Server) checkSearchIndex(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "search snapshot not configured",
		}
	}

	start := time.Now()
	snapshot, err := s.store.GetSearchSnapshot(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "search snapshot unreadable",
		}
	}
	if snapshot == nil {
		return ComponentHealth{
			Status:  "degraded",
			Latency: latency.String(),
			Message: "search snapshot not built yet",
		}
	}
	if s.events != nil && s.events.IsRebuilding() {
		return ComponentHealth{
			Status:  "healthy",
			Latency: latency.String(),
			Message: "index rebuild in progress",
		}
	}

	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
	}
}
