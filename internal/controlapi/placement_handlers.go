package controlapi

import (
	"net/http"
	"time"

	"github.com/cloudorch/orchestrator/internal/catalog"
	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

type recommendation struct {
	Provider       provider.Name        `json:"provider"`
	Container      string               `json:"container"`
	Key            string               `json:"key"`
	CurrentTier    model.Tier           `json:"current_tier"`
	Recommendation model.Recommendation `json:"recommendation"`
}

type recommendationsResponse struct {
	Recommendations []recommendation `json:"recommendations"`
}

// handleRecommendations classifies every catalog entry matching the
// optional provider filter against the current moment and returns every
// non-nil recommendation. It always re-classifies rather than trusting a
// stale cached Recommendation field, since access stats move between
// catalog refreshes and a recommendation is cheap to recompute.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, orcherr.InvalidArgument(component, "method not allowed"))
		return
	}
	filter := catalog.Filter{Provider: provider.Name(r.URL.Query().Get("provider"))}
	now := time.Now()

	var out []recommendation
	for _, entry := range s.cat.List(filter) {
		providerName := provider.Name(entry.Ref.Provider)
		rec := s.classifier.Classify(entry, providerName, now)
		if rec == nil {
			continue
		}
		out = append(out, recommendation{
			Provider:       providerName,
			Container:      entry.Ref.Container,
			Key:            entry.Ref.Key,
			CurrentTier:    entry.CurrentTier,
			Recommendation: *rec,
		})
	}
	respondJSON(w, http.StatusOK, recommendationsResponse{Recommendations: out})
}

type tierBucket struct {
	Provider    provider.Name `json:"provider"`
	Tier        model.Tier    `json:"tier"`
	ObjectCount int           `json:"object_count"`
	TotalBytes  int64         `json:"total_bytes"`
	MonthlyCost float64       `json:"monthly_cost"`
}

type tierDistributionResponse struct {
	Buckets []tierBucket `json:"buckets"`
}

// handleTierDistribution aggregates catalog entries by (provider, tier)
// and estimates each bucket's monthly cost via the shared cost model, the
// same cost model the Placement Classifier uses for its recommendations.
func (s *Server) handleTierDistribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, orcherr.InvalidArgument(component, "method not allowed"))
		return
	}
	filter := catalog.Filter{Provider: provider.Name(r.URL.Query().Get("provider"))}

	type key struct {
		provider provider.Name
		tier     model.Tier
	}
	buckets := make(map[key]*tierBucket)
	order := make([]key, 0)

	for _, entry := range s.cat.List(filter) {
		providerName := provider.Name(entry.Ref.Provider)
		k := key{provider: providerName, tier: entry.CurrentTier}
		b, ok := buckets[k]
		if !ok {
			b = &tierBucket{Provider: providerName, Tier: entry.CurrentTier}
			buckets[k] = b
			order = append(order, k)
		}
		b.ObjectCount++
		b.TotalBytes += entry.Ref.SizeBytes
	}

	out := make([]tierBucket, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		if s.costs != nil {
			b.MonthlyCost = s.costs.MonthlyCost(k.provider, k.tier, b.TotalBytes)
		}
		out = append(out, *b)
	}
	respondJSON(w, http.StatusOK, tierDistributionResponse{Buckets: out})
}
