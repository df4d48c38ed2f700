// Package placement implements the one and only tier classifier (see the
// "one classifier, not two" design decision): a deterministic temperature
// rule, optionally adjusted by the Access Predictor, constrained to what
// the destination provider supports, and filtered by the economics of
// actually moving the object.
package placement

import (
	"fmt"
	"math"
	"time"

	"github.com/cloudorch/orchestrator/internal/costmodel"
	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
)

const bytesPerGiB = 1 << 30

// hotAccessCountThreshold is the access-count-window value rule A treats
// as the HOT-by-frequency boundary. The predictor override (step B)
// reuses this same threshold when judging whether its prediction would
// move the object's temperature.
const hotAccessCountThreshold = 100

// Predictor is the Access Predictor's contract as seen by the classifier.
// Available reports whether a model is currently loaded; when it is not,
// step B is skipped entirely rather than guessing.
type Predictor interface {
	Available() bool
	PredictAccessCount(entry model.CatalogEntry) float64
}

// Config tunes the classifier's behavior. Values normally come from
// internal/config.ClassifierConfig.
type Config struct {
	// ColdAccessDays is the days-since-last-access boundary rule A uses
	// for its large-cold-object clause. Zero means the default of 30.
	ColdAccessDays int
	// MinConfidence suppresses a recommendation rule D would otherwise
	// emit when its confidence falls below this floor. Zero means no
	// floor (only the savings threshold applies).
	MinConfidence        float64
	MinMonthlySavingsUSD float64
}

const defaultColdAccessDays = 30

func (c Config) coldAccessDays() int {
	if c.ColdAccessDays <= 0 {
		return defaultColdAccessDays
	}
	return c.ColdAccessDays
}

// providerSupportedTiers lists the tiers a provider's adapter supports, in
// case a future provider lacks one of the four temperature tiers. All
// providers wired today support the full set.
var providerSupportedTiers = map[provider.Name][]model.Tier{
	provider.AWS:   {model.TierHot, model.TierWarm, model.TierCold, model.TierArchive},
	provider.Azure: {model.TierHot, model.TierWarm, model.TierCold, model.TierArchive},
	provider.GCP:   {model.TierHot, model.TierWarm, model.TierCold, model.TierArchive},
	provider.Mock:  {model.TierHot, model.TierWarm, model.TierCold, model.TierArchive},
}

// Classifier produces a Recommendation for a CatalogEntry, or nil when
// the economics don't justify one.
type Classifier struct {
	costs     *costmodel.Model
	predictor Predictor
	config    Config
}

// New builds a Classifier. predictor may be nil, which behaves exactly
// like an Available() == false predictor (step B is always skipped).
func New(costs *costmodel.Model, predictor Predictor, config Config) *Classifier {
	return &Classifier{costs: costs, predictor: predictor, config: config}
}

// Classify runs the classifier's deterministic rule sequence (A-E) and is
// pure: identical entry, provider, and predictor state always produce a
// byte-identical Recommendation.
func (c *Classifier) Classify(entry model.CatalogEntry, providerName provider.Name, now time.Time) *model.Recommendation {
	tier, _ := c.ruleA(entry, now)
	tier, confidence := c.ruleB(entry, now, tier)
	tier = c.ruleC(tier, providerName)

	if tier == entry.CurrentTier {
		return nil
	}

	savings := c.costs.MonthlySavings(providerName, entry.CurrentTier, tier, entry.Ref.SizeBytes)
	rec, ok := c.ruleD(tier, confidence, savings)
	if !ok {
		return nil
	}
	rec.Rationale = c.ruleE(entry, now, tier, rec.Priority)
	return rec
}

// ruleA is the deterministic temperature rule: no predictor input, pure
// function of size, age, and recent access.
func (c *Classifier) ruleA(entry model.CatalogEntry, now time.Time) (model.Tier, float64) {
	access := entry.Access
	daysSince := access.DaysSinceLastAccess(now)
	sizeBytes := entry.Ref.SizeBytes

	switch {
	case access.AccessCountWindow >= 100:
		return model.TierHot, 1.0
	case daysSince <= 7 && sizeBytes < 1*bytesPerGiB:
		return model.TierHot, 1.0
	case access.AgeDays > 365 && access.AccessCountWindow == 0:
		return model.TierArchive, 1.0
	case daysSince > c.config.coldAccessDays() && sizeBytes > 10*bytesPerGiB:
		return model.TierCold, 1.0
	default:
		return model.TierWarm, 1.0
	}
}

// ruleB consults the Access Predictor when available. The predictor
// reports a predicted next-window access count; substituting it for the
// observed count and re-running rule A tells us whether the prediction
// would move temperature up or down. When it does, the predictor's tier
// wins, with confidence a monotone function of how far the prediction
// sits from the threshold that moved it, clamped to [0.5, 0.95]. When the
// predictor is unavailable, the rule-A tier and a fixed 0.7 confidence
// pass through unchanged — the classifier degrades gracefully rather
// than failing.
func (c *Classifier) ruleB(entry model.CatalogEntry, now time.Time, ruleATier model.Tier) (model.Tier, float64) {
	if c.predictor == nil || !c.predictor.Available() {
		return ruleATier, 0.7
	}

	predicted := c.predictor.PredictAccessCount(entry)
	adjusted := entry
	adjusted.Access.AccessCountWindow = int(math.Round(predicted))
	predictedTier, _ := c.ruleA(adjusted, now)

	if predictedTier == ruleATier {
		return ruleATier, 0.7
	}

	distance := math.Abs(predicted - hotAccessCountThreshold)
	confidence := 0.5 + math.Min(distance/hotAccessCountThreshold, 1)*0.45
	return predictedTier, confidence
}

// ruleC rounds tier to the coldest tier providerName actually supports,
// never colder than what was asked for and never warmer than necessary.
func (c *Classifier) ruleC(tier model.Tier, providerName provider.Name) model.Tier {
	supported, ok := providerSupportedTiers[providerName]
	if !ok || len(supported) == 0 {
		return tier
	}
	best := supported[0]
	for _, s := range supported {
		if s <= tier && s >= best {
			best = s
		}
	}
	return best
}

// ruleD applies the economic filter: no recommendation below the
// configured savings threshold or below the configured confidence
// floor, and a priority derived from how large a multiple of the
// savings threshold the savings represent.
func (c *Classifier) ruleD(tier model.Tier, confidence, savings float64) (*model.Recommendation, bool) {
	threshold := c.config.MinMonthlySavingsUSD
	if threshold <= 0 {
		threshold = 0.01
	}
	if savings < threshold {
		return nil, false
	}
	if c.config.MinConfidence > 0 && confidence < c.config.MinConfidence {
		return nil, false
	}

	var priority model.Priority
	switch {
	case savings >= 10*threshold:
		priority = model.PriorityHigh
	case savings >= 3*threshold:
		priority = model.PriorityMedium
	default:
		priority = model.PriorityLow
	}

	return &model.Recommendation{
		RecommendedTier: tier,
		MonthlySavings:  savings,
		Priority:        priority,
		Confidence:      confidence,
	}, true
}

// ruleE produces a short human-readable justification string.
func (c *Classifier) ruleE(entry model.CatalogEntry, now time.Time, tier model.Tier, priority model.Priority) string {
	daysSince := entry.Access.DaysSinceLastAccess(now)
	return fmt.Sprintf(
		"move %s -> %s: %d accesses in window, last accessed %d days ago, priority %s",
		entry.CurrentTier, tier, entry.Access.AccessCountWindow, daysSince, priority,
	)
}
