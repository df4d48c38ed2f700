package controlapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudorch/orchestrator/internal/catalog"
	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

const defaultObjectsLimit = 100

type catalogObjectsResponse struct {
	Objects    []model.CatalogEntry `json:"objects"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// handleCatalogObjects lists catalog entries filtered by provider/tier and
// paginated by limit/cursor. The cursor is the container/key of the last
// entry returned on the previous page; List's output is already sorted
// the same way every call, so a linear scan past the cursor is stable.
func (s *Server) handleCatalogObjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, orcherr.InvalidArgument(component, "method not allowed"))
		return
	}
	q := r.URL.Query()
	filter := catalog.Filter{Provider: provider.Name(q.Get("provider"))}
	if tierStr := q.Get("tier"); tierStr != "" {
		tier, ok := model.ParseTier(tierStr)
		if !ok {
			respondError(w, orcherr.InvalidArgument(component, "unrecognized tier").WithContext("tier", tierStr))
			return
		}
		filter.Tier = &tier
	}

	limit := defaultObjectsLimit
	if limitStr := q.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			respondError(w, orcherr.InvalidArgument(component, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries := s.cat.List(filter)
	start := 0
	if cursor := q.Get("cursor"); cursor != "" {
		start = len(entries)
		for i, e := range entries {
			if entryCursor(e) == cursor {
				start = i + 1
				break
			}
		}
	}
	if start > len(entries) {
		start = len(entries)
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	page := entries[start:end]

	resp := catalogObjectsResponse{Objects: page}
	if end < len(entries) && len(page) > 0 {
		resp.NextCursor = entryCursor(page[len(page)-1])
	}
	respondJSON(w, http.StatusOK, resp)
}

func entryCursor(e model.CatalogEntry) string {
	return e.Ref.Container + "/" + e.Ref.Key
}

type refreshResponse struct {
	RefreshID string `json:"refresh_id"`
	Status    string `json:"status"`
}

// handleCatalogRefresh kicks off an asynchronous Refresh against every
// configured provider and returns immediately with an id the caller can
// poll indirectly via the catalog.refresh_completed event stream.
func (s *Server) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, orcherr.InvalidArgument(component, "method not allowed"))
		return
	}
	q := r.URL.Query()
	requested := provider.Name(q.Get("provider"))
	containers := r.URL.Query()["container"]

	refreshID := s.refreshes.start()
	go s.runCatalogRefresh(refreshID, requested, containers)

	respondJSON(w, http.StatusAccepted, refreshResponse{RefreshID: refreshID, Status: "started"})
}

func (s *Server) runCatalogRefresh(refreshID string, requested provider.Name, containers []string) {
	targets := s.providers
	if requested != "" {
		if adapter, ok := s.providers[requested]; ok {
			targets = map[provider.Name]provider.Adapter{requested: adapter}
		} else {
			s.refreshes.fail(refreshID, "unknown provider")
			return
		}
	}

	ctx := context.Background()
	for name, adapter := range targets {
		start := time.Now()
		summary, err := s.cat.Refresh(ctx, name, adapter, containers, time.Now())
		if s.collector != nil {
			s.collector.RecordCatalogRefresh(string(name), time.Since(start), summary.Total)
		}
		if err != nil {
			s.logger.Error("catalog refresh failed", "provider", string(name), "error", err)
			s.refreshes.fail(refreshID, err.Error())
			continue
		}
		if s.bus != nil {
			s.bus.Publish(model.Event{
				Type: "catalog.refresh_completed",
				Payload: map[string]interface{}{
					"refresh_id":   refreshID,
					"provider":     string(name),
					"object_count": summary.Total,
					"added":        summary.Added,
					"updated":      summary.Updated,
					"removed":      summary.Removed,
				},
			})
		}
	}
	s.refreshes.complete(refreshID)
}
