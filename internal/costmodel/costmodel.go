// Package costmodel holds the (provider, tier) -> unit price table the
// Placement Classifier uses to estimate monthly storage cost and the
// savings a tier change would produce. Prices are approximate published
// rates, not live billing data.
package costmodel

import (
	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
)

const bytesPerGB = 1024 * 1024 * 1024

// PriceKey identifies one (provider, tier) row in a cost table. Values
// are USD per GB per month.
type PriceKey struct {
	Provider provider.Name
	Tier     model.Tier
}

// Model is the cost table. A Model value is immutable once built and safe
// for concurrent use.
type Model struct {
	prices map[PriceKey]float64
}

// defaultPrices mirrors the approximate public per-GB-month rates the
// teacher's S3 tier table ships for AWS, extended with Azure and GCP's
// published equivalents for the same temperature tiers.
func defaultPrices() map[PriceKey]float64 {
	return map[PriceKey]float64{
		{provider.AWS, model.TierHot}:     0.023,
		{provider.AWS, model.TierWarm}:    0.0125,
		{provider.AWS, model.TierCold}:    0.004,
		{provider.AWS, model.TierArchive}: 0.00099,

		{provider.Azure, model.TierHot}:     0.0184,
		{provider.Azure, model.TierWarm}:    0.01,
		{provider.Azure, model.TierCold}:    0.00152,
		{provider.Azure, model.TierArchive}: 0.00099,

		{provider.GCP, model.TierHot}:     0.02,
		{provider.GCP, model.TierWarm}:    0.01,
		{provider.GCP, model.TierCold}:    0.004,
		{provider.GCP, model.TierArchive}: 0.0012,

		{provider.Mock, model.TierHot}:     0.02,
		{provider.Mock, model.TierWarm}:    0.01,
		{provider.Mock, model.TierCold}:    0.004,
		{provider.Mock, model.TierArchive}: 0.001,
	}
}

// NewDefault builds a Model from the built-in price table.
func NewDefault() *Model {
	return &Model{prices: defaultPrices()}
}

// NewFromTable builds a Model from an explicit price table, letting
// deployments override published rates with their negotiated pricing.
func NewFromTable(prices map[PriceKey]float64) *Model {
	cp := make(map[PriceKey]float64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &Model{prices: cp}
}

// UnitPrice returns the USD-per-GB-per-month rate for (providerName, tier).
// Unknown (provider, tier) pairs fall back to the provider's HOT rate, or
// to 0.023 (the AWS Standard rate) if the provider itself is unknown.
func (m *Model) UnitPrice(providerName provider.Name, tier model.Tier) float64 {
	if price, ok := m.prices[PriceKey{providerName, tier}]; ok {
		return price
	}
	if price, ok := m.prices[PriceKey{providerName, model.TierHot}]; ok {
		return price
	}
	return 0.023
}

// MonthlyCost estimates the monthly storage cost of sizeBytes stored at
// (providerName, tier).
func (m *Model) MonthlyCost(providerName provider.Name, tier model.Tier, sizeBytes int64) float64 {
	gb := float64(sizeBytes) / bytesPerGB
	return gb * m.UnitPrice(providerName, tier)
}

// MonthlySavings returns the non-negative monthly savings from moving
// sizeBytes off currentTier and onto recommendedTier on the same
// provider. A move to a more expensive tier yields 0, never a negative
// number — a recommendation never claims savings it does not have.
func (m *Model) MonthlySavings(providerName provider.Name, currentTier, recommendedTier model.Tier, sizeBytes int64) float64 {
	current := m.MonthlyCost(providerName, currentTier, sizeBytes)
	recommended := m.MonthlyCost(providerName, recommendedTier, sizeBytes)
	savings := current - recommended
	if savings < 0 {
		return 0
	}
	return savings
}
