package controlapi

import (
	"net/http"

	"github.com/cloudorch/orchestrator/pkg/health"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

type healthResponse struct {
	Status     string                             `json:"status"`
	Components map[string]*health.ComponentHealth `json:"components,omitempty"`
}

// handleHealth reports the overall health state and, when a Monitor is
// wired, every registered component's individual state. It requires no
// authentication: load balancers and orchestration probes hit it without
// a bearer token.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, orcherr.InvalidArgument(component, "method not allowed"))
		return
	}
	if s.healthMon == nil {
		respondJSON(w, http.StatusOK, healthResponse{Status: health.StateHealthy.String()})
		return
	}

	overall := s.healthMon.GetOverallHealth()
	status := http.StatusOK
	if overall == health.StateUnavailable {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, healthResponse{
		Status:     overall.String(),
		Components: s.healthMon.GetAllComponents(),
	})
}
