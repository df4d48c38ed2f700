package controlapi

import (
	"encoding/json"
	"net/http"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

type registerRequest struct {
	PrincipalID string     `json:"principal_id"`
	Credential  string     `json:"credential"`
	Role        model.Role `json:"role"`
}

type registerResponse struct {
	Principal model.Principal `json:"principal"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, orcherr.InvalidArgument(component, "method not allowed"))
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, orcherr.InvalidArgument(component, "malformed request body").WithCause(err))
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleViewer
	}
	principal, err := s.authSvc.Register(req.PrincipalID, req.Credential, role)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, registerResponse{Principal: principal})
}

type loginRequest struct {
	PrincipalID string `json:"principal_id"`
	Credential  string `json:"credential"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, orcherr.InvalidArgument(component, "method not allowed"))
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, orcherr.InvalidArgument(component, "malformed request body").WithCause(err))
		return
	}
	token, err := s.authSvc.Login(req.PrincipalID, req.Credential)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{Token: token})
}
