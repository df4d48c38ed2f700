package controlapi

import (
	"encoding/json"
	"net/http"

	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

const component = "controlapi"

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// The status line and headers are already written; nothing left
		// to do but note it happened.
		_ = err
	}
}

// respondError translates err into the orcherr taxonomy's HTTP status and
// writes its structured JSON body. Unstructured errors are reported as
// INTERNAL, same as orcherr.CodeOf's default.
func respondError(w http.ResponseWriter, err error) {
	oerr, ok := err.(*orcherr.Error)
	if !ok {
		oerr = orcherr.Internal(component, err.Error()).WithCause(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(oerr.HTTPStatus)
	_, _ = w.Write([]byte(oerr.JSON()))
}
