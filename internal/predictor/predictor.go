// Package predictor implements the Access Predictor: a small linear model
// over a fixed feature vector that forecasts how many times an object will
// be accessed in the next window. Its only consumer is
// internal/placement's rule B, which substitutes the forecast into the
// temperature rule rather than trusting it directly.
package predictor

import (
	"encoding/json"
	"math"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/pkg/health"
)

const healthComponent = "predictor"

// contentTypeBuckets is the small closed set the content-type-hint feature
// one-hot encodes against. Anything not recognized by extension maps to
// "other".
var contentTypeBuckets = []string{"text", "image", "video", "audio", "archive", "application", "other"}

var extensionBucket = map[string]string{
	".txt": "text", ".csv": "text", ".json": "text", ".log": "text", ".md": "text",
	".jpg": "image", ".jpeg": "image", ".png": "image", ".gif": "image", ".webp": "image",
	".mp4": "video", ".mov": "video", ".mkv": "video", ".avi": "video",
	".mp3": "audio", ".wav": "audio", ".flac": "audio",
	".zip": "archive", ".tar": "archive", ".gz": "archive", ".tgz": "archive", ".zst": "archive",
	".bin": "application", ".exe": "application", ".so": "application", ".dll": "application",
}

func contentTypeBucket(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if bucket, ok := extensionBucket[ext]; ok {
		return bucket
	}
	return "other"
}

// providerTags is the closed set of providers the provider-tag feature
// one-hot encodes against.
var providerTags = []string{"aws", "azure", "gcp", "mock"}

// featureOrder is the fixed feature vector the model's weight map keys are
// drawn from, in the order the contract defines them.
func featureOrder() []string {
	order := []string{
		"size_bytes_log",
		"age_days",
		"days_since_last_access",
		"access_count_window",
	}
	for _, b := range contentTypeBuckets {
		order = append(order, "content_type:"+b)
	}
	order = append(order, "weekday_of_last_access", "hour_of_last_access")
	for _, p := range providerTags {
		order = append(order, "provider:"+p)
	}
	return order
}

// featurize builds the named feature map for entry. It is a pure function
// of entry and now: no network, no catalog-size-dependent work.
func featurize(entry model.CatalogEntry, now time.Time) map[string]float64 {
	features := make(map[string]float64, len(featureOrder()))
	for _, name := range featureOrder() {
		features[name] = 0
	}

	features["size_bytes_log"] = math.Log1p(float64(entry.Ref.SizeBytes))
	features["age_days"] = float64(entry.Access.AgeDays)
	features["days_since_last_access"] = float64(entry.Access.DaysSinceLastAccess(now))
	features["access_count_window"] = float64(entry.Access.AccessCountWindow)
	features["content_type:"+contentTypeBucket(entry.Ref.Key)] = 1

	if !entry.Access.LastAccessAt.IsZero() {
		features["weekday_of_last_access"] = float64(entry.Access.LastAccessAt.Weekday())
		features["hour_of_last_access"] = float64(entry.Access.LastAccessAt.Hour())
	}

	tag := strings.ToLower(entry.Ref.Provider)
	if _, ok := features["provider:"+tag]; ok {
		features["provider:"+tag] = 1
	}

	return features
}

// Model is an immutable trained artifact: a bias and a per-feature-name
// weight. Loaded wholesale and swapped atomically, never mutated in place.
type Model struct {
	Bias    float64            `json:"bias"`
	Weights map[string]float64 `json:"weights"`
}

// predict applies the linear model and a softplus activation, which (unlike
// the sigmoid the weight/bias shape is normally paired with) keeps the
// output an unbounded non-negative count rather than a 0-1 probability --
// predicted_access_count_next_window has no upper bound.
func (m *Model) predict(features map[string]float64) float64 {
	sum := m.Bias
	for name, value := range features {
		if w, ok := m.Weights[name]; ok {
			sum += w * value
		}
	}
	return math.Log1p(math.Exp(sum))
}

// LoadModel reads a model artifact from path as JSON.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Weights == nil {
		m.Weights = map[string]float64{}
	}
	return &m, nil
}

// Predictor holds the currently loaded Model behind an atomic pointer so
// that a hot reload is visible to concurrent inference either in full or
// not at all, never as a partially-loaded mix.
type Predictor struct {
	current atomic.Pointer[Model]
	health  *health.Monitor
}

// New constructs a Predictor and attempts an initial load from modelPath.
// A missing or invalid model is not an error here: the predictor simply
// starts unavailable, matching the degrade-to-rule-surrogate contract.
func New(modelPath string, monitor *health.Monitor) *Predictor {
	p := &Predictor{health: monitor}
	if monitor != nil {
		monitor.RegisterComponent(healthComponent)
	}
	if modelPath != "" {
		_ = p.Reload(modelPath)
	}
	p.reportAvailability()
	return p
}

// Reload replaces the active model with the one read from modelPath. On
// failure the previously loaded model (if any) stays active; the caller
// observes the error but inference is never left half-updated.
func (p *Predictor) Reload(modelPath string) error {
	m, err := LoadModel(modelPath)
	if err != nil {
		if p.health != nil {
			p.health.RecordError(healthComponent, err)
		}
		p.reportAvailability()
		return err
	}
	p.current.Store(m)
	if p.health != nil {
		p.health.RecordSuccess(healthComponent)
	}
	p.reportAvailability()
	return nil
}

func (p *Predictor) reportAvailability() {
	if p.health == nil {
		return
	}
	p.health.SetComponentMetadata(healthComponent, "model_available", p.Available())
}

// Available reports whether a model is currently loaded. internal/placement
// treats an unavailable predictor as a signal to skip its override rule
// entirely rather than guessing with a zero-valued model.
func (p *Predictor) Available() bool {
	return p.current.Load() != nil
}

// PredictAccessCount forecasts access_count_window for the next window.
// Callers must check Available first; an unloaded predictor returns 0.
func (p *Predictor) PredictAccessCount(entry model.CatalogEntry) float64 {
	m := p.current.Load()
	if m == nil {
		return 0
	}
	return m.predict(featurize(entry, time.Now()))
}
