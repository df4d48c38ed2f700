package controlapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

type principalKey struct{}

// requireRole wraps next so it only runs once the bearer token validates
// and the resulting Principal's role allows required. The validated
// Principal is attached to the request context for the handler to read.
func (s *Server) requireRole(required model.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, orcherr.Unauthenticated(component, "missing bearer token"))
			return
		}
		principal, err := s.authSvc.Require(token, required)
		if err != nil {
			respondError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func principalFrom(r *http.Request) (model.Principal, bool) {
	p, ok := r.Context().Value(principalKey{}).(model.Principal)
	return p, ok
}
