package controlapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloudorch/orchestrator/internal/engine"
	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

type createMigrationRequest struct {
	SourceProvider  provider.Name     `json:"source_provider"`
	DestProvider    provider.Name     `json:"dest_provider"`
	SourceContainer string            `json:"source_container"`
	DestContainer   string            `json:"dest_container"`
	FileList        []string          `json:"file_list"`
	Priority        model.JobPriority `json:"priority"`
}

type migrationResponse struct {
	Job model.MigrationJob `json:"job"`
}

type migrationsListResponse struct {
	Jobs []model.MigrationJob `json:"jobs"`
}

// handleMigrationsCollection dispatches POST /migrations (create, user+)
// and GET /migrations (list, viewer+). Both share a route because the
// role check at requireRole(RoleViewer, ...) is the looser of the two;
// the POST branch re-checks for RoleUser itself.
func (s *Server) handleMigrationsCollection(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r)
	switch r.Method {
	case http.MethodPost:
		if !principal.Role.Allows(model.RoleUser) {
			respondError(w, orcherr.Forbidden(component, "migration creation requires the user role or higher"))
			return
		}
		var req createMigrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, orcherr.InvalidArgument(component, "malformed request body").WithCause(err))
			return
		}
		job, err := s.eng.Create(r.Context(), engine.CreateRequest{
			SourceProvider:  req.SourceProvider,
			DestProvider:    req.DestProvider,
			SourceContainer: req.SourceContainer,
			DestContainer:   req.DestContainer,
			FileList:        req.FileList,
			Priority:        req.Priority,
			Owner:           principal.ID,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, migrationResponse{Job: job})
	case http.MethodGet:
		jobs := s.eng.List(principal.ID, principal.Role == model.RoleAdmin)
		respondJSON(w, http.StatusOK, migrationsListResponse{Jobs: jobs})
	default:
		respondError(w, orcherr.InvalidArgument(component, "method not allowed"))
	}
}

// handleMigrationByID dispatches GET/DELETE /migrations/{id}.
func (s *Server) handleMigrationByID(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/migrations/")
	if jobID == "" || strings.Contains(jobID, "/") {
		respondError(w, orcherr.NotFound(component, "migration job not found"))
		return
	}
	principal, _ := principalFrom(r)
	isAdmin := principal.Role == model.RoleAdmin

	switch r.Method {
	case http.MethodGet:
		job, err := s.eng.Get(jobID, principal.ID, isAdmin)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, migrationResponse{Job: job})
	case http.MethodDelete:
		if err := s.eng.Cancel(jobID, principal.ID, isAdmin); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		respondError(w, orcherr.InvalidArgument(component, "method not allowed"))
	}
}
