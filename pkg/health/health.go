// Package health tracks component health and degrades the control API's
// capabilities gracefully instead of failing outright.
package health

import (
	"context"
	stderr "errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

// HealthState represents the overall health state of a component.
type HealthState int

const (
	// StateHealthy indicates the component is fully operational.
	StateHealthy HealthState = iota

	// StateDegraded indicates reduced functionality but service continues.
	StateDegraded

	// StateReadOnly indicates only read operations should be attempted.
	StateReadOnly

	// StateUnavailable indicates the component should not be used at all.
	StateUnavailable
)

// String returns the string representation of a health state.
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateReadOnly:
		return "read-only"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ComponentHealth tracks the health of a specific component.
type ComponentHealth struct {
	Name              string                 `json:"name"`
	State             HealthState            `json:"state"`
	LastStateChange   time.Time              `json:"last_state_change"`
	LastHealthCheck   time.Time              `json:"last_health_check"`
	ConsecutiveErrors int                    `json:"consecutive_errors"`
	LastError         error                  `json:"-"`
	LastErrorMessage  string                 `json:"last_error_message,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// Monitor tracks the health of every registered component (provider adapters,
// the catalog, the predictor's model, the migration engine's worker pool, the
// event bus) and derives the overall system state surfaced at /health.
type Monitor struct {
	mu              sync.RWMutex
	components      map[string]*ComponentHealth
	config          MonitorConfig
	stateCallbacks  map[HealthState][]StateChangeCallback
	healthListeners []HealthListener
}

// MonitorConfig configures health tracking behavior.
type MonitorConfig struct {
	// ErrorThreshold is consecutive errors before marking a component degraded.
	ErrorThreshold int `yaml:"error_threshold" json:"error_threshold"`

	// UnavailableThreshold is consecutive errors before marking unavailable.
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`

	// RecoveryThreshold is consecutive successes to recover from degraded.
	RecoveryThreshold int `yaml:"recovery_threshold" json:"recovery_threshold"`

	// HealthCheckInterval is the interval for automatic health checks.
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// EnableAutoRecovery enables automatic recovery from degraded states.
	EnableAutoRecovery bool `yaml:"enable_auto_recovery" json:"enable_auto_recovery"`
}

// StateChangeCallback is called when a component's health state changes.
type StateChangeCallback func(component string, oldState, newState HealthState, err error)

// HealthListener is notified of all health events.
type HealthListener interface {
	OnStateChange(component string, oldState, newState HealthState, err error)
	OnHealthCheck(component string, healthy bool, err error)
}

// DefaultConfig returns a default monitor configuration.
func DefaultConfig() MonitorConfig {
	return MonitorConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
		RecoveryThreshold:    5,
		HealthCheckInterval:  30 * time.Second,
		EnableAutoRecovery:   true,
	}
}

// NewMonitor creates a new health monitor.
func NewMonitor(config MonitorConfig) *Monitor {
	return &Monitor{
		components:      make(map[string]*ComponentHealth),
		config:          config,
		stateCallbacks:  make(map[HealthState][]StateChangeCallback),
		healthListeners: make([]HealthListener, 0),
	}
}

// RegisterComponent registers a new component for health tracking.
func (m *Monitor) RegisterComponent(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.components[name]; !exists {
		m.components[name] = &ComponentHealth{
			Name:            name,
			State:           StateHealthy,
			LastStateChange: time.Now(),
			LastHealthCheck: time.Now(),
			Metadata:        make(map[string]interface{}),
		}
	}
}

// RecordSuccess records a successful operation for a component.
func (m *Monitor) RecordSuccess(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	health, exists := m.components[component]
	if !exists {
		return
	}

	oldState := health.State
	health.LastHealthCheck = time.Now()

	if health.ConsecutiveErrors > 0 {
		health.ConsecutiveErrors--

		if health.ConsecutiveErrors == 0 && health.State != StateHealthy {
			m.transitionState(health, StateHealthy, nil)
		}
	}

	for _, listener := range m.healthListeners {
		listener.OnHealthCheck(component, true, nil)
	}

	if oldState != health.State {
		m.notifyStateChange(component, oldState, health.State, nil)
	}
}

// RecordError records an error for a component.
func (m *Monitor) RecordError(component string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	health, exists := m.components[component]
	if !exists {
		return
	}

	oldState := health.State
	health.LastHealthCheck = time.Now()
	health.ConsecutiveErrors++
	health.LastError = err
	if err != nil {
		health.LastErrorMessage = err.Error()
	}

	var newState HealthState
	if health.ConsecutiveErrors >= m.config.UnavailableThreshold {
		newState = StateUnavailable
	} else if health.ConsecutiveErrors >= m.config.ErrorThreshold {
		if m.isReadOnlyError(err) {
			newState = StateReadOnly
		} else {
			newState = StateDegraded
		}
	} else {
		newState = health.State
	}

	if newState != oldState {
		m.transitionState(health, newState, err)
	}

	for _, listener := range m.healthListeners {
		listener.OnHealthCheck(component, false, err)
	}

	if oldState != health.State {
		m.notifyStateChange(component, oldState, health.State, err)
	}
}

// GetState returns the current health state of a component.
func (m *Monitor) GetState(component string) HealthState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if health, exists := m.components[component]; exists {
		return health.State
	}
	return StateUnavailable
}

// GetComponentHealth returns the health information for a component.
func (m *Monitor) GetComponentHealth(component string) (*ComponentHealth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health, exists := m.components[component]
	if !exists {
		return nil, fmt.Errorf("component %s not registered", component)
	}

	return &ComponentHealth{
		Name:              health.Name,
		State:             health.State,
		LastStateChange:   health.LastStateChange,
		LastHealthCheck:   health.LastHealthCheck,
		ConsecutiveErrors: health.ConsecutiveErrors,
		LastError:         health.LastError,
		LastErrorMessage:  health.LastErrorMessage,
		Metadata:          health.Metadata,
	}, nil
}

// GetAllComponents returns health information for all registered components.
func (m *Monitor) GetAllComponents() map[string]*ComponentHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*ComponentHealth)
	for name, health := range m.components {
		result[name] = &ComponentHealth{
			Name:              health.Name,
			State:             health.State,
			LastStateChange:   health.LastStateChange,
			LastHealthCheck:   health.LastHealthCheck,
			ConsecutiveErrors: health.ConsecutiveErrors,
			LastError:         health.LastError,
			LastErrorMessage:  health.LastErrorMessage,
			Metadata:          health.Metadata,
		}
	}
	return result
}

// GetOverallHealth returns the overall system health based on all components,
// used for the top-level status field returned by GET /health.
func (m *Monitor) GetOverallHealth() HealthState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.components) == 0 {
		return StateHealthy
	}

	overallState := StateHealthy
	for _, health := range m.components {
		if health.State > overallState {
			overallState = health.State
		}
	}

	return overallState
}

// IsHealthy returns true if the component is in a healthy state.
func (m *Monitor) IsHealthy(component string) bool {
	return m.GetState(component) == StateHealthy
}

// CanRead returns true if the component can serve read operations (catalog
// listing, cost estimates, predictions).
func (m *Monitor) CanRead(component string) bool {
	state := m.GetState(component)
	return state == StateHealthy || state == StateDegraded || state == StateReadOnly
}

// CanWrite returns true if the component can accept mutating operations
// (migration submission, principal registration).
func (m *Monitor) CanWrite(component string) bool {
	state := m.GetState(component)
	return state == StateHealthy || state == StateDegraded
}

// AddStateChangeCallback registers a callback for transitions into a state.
func (m *Monitor) AddStateChangeCallback(state HealthState, callback StateChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stateCallbacks[state] = append(m.stateCallbacks[state], callback)
}

// AddHealthListener registers a health listener.
func (m *Monitor) AddHealthListener(listener HealthListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.healthListeners = append(m.healthListeners, listener)
}

// SetComponentMetadata sets metadata for a component, e.g. the predictor's
// model_available flag or a provider adapter's last-seen region.
func (m *Monitor) SetComponentMetadata(component, key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if health, exists := m.components[component]; exists {
		health.Metadata[key] = value
	}
}

func (m *Monitor) transitionState(health *ComponentHealth, newState HealthState, err error) {
	health.State = newState
	health.LastStateChange = time.Now()

	if newState == StateHealthy {
		health.ConsecutiveErrors = 0
		health.LastError = nil
		health.LastErrorMessage = ""
	}
}

func (m *Monitor) notifyStateChange(component string, oldState, newState HealthState, err error) {
	if callbacks, exists := m.stateCallbacks[newState]; exists {
		for _, callback := range callbacks {
			go callback(component, oldState, newState, err)
		}
	}

	for _, listener := range m.healthListeners {
		go listener.OnStateChange(component, oldState, newState, err)
	}
}

// isReadOnlyError reports whether err indicates writes are unsafe but reads
// may still succeed (e.g. the provider rejected a write due to a quota or
// permission problem, but enumeration still works).
func (m *Monitor) isReadOnlyError(err error) bool {
	if err == nil {
		return false
	}

	var oerr *orcherr.Error
	if stderr.As(err, &oerr) {
		switch oerr.Code {
		case orcherr.CodeForbidden, orcherr.CodeOverloaded:
			return true
		}
	}

	return false
}

// StartHealthChecks starts periodic health checks for all components.
func (m *Monitor) StartHealthChecks(ctx context.Context, checkFn func(component string) error) {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.performHealthChecks(checkFn)
		}
	}
}

func (m *Monitor) performHealthChecks(checkFn func(component string) error) {
	m.mu.RLock()
	components := make([]string, 0, len(m.components))
	for name := range m.components {
		components = append(components, name)
	}
	m.mu.RUnlock()

	for _, component := range components {
		err := checkFn(component)
		if err != nil {
			m.RecordError(component, err)
		} else {
			m.RecordSuccess(component)
		}
	}
}
