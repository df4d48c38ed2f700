package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration is the complete application configuration, one section per
// component family.
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Engine     EngineConfig     `yaml:"engine"`
	Events     EventsConfig     `yaml:"events"`
	Auth       AuthConfig       `yaml:"auth"`
}

// GlobalConfig holds process-wide settings.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsPort int    `yaml:"metrics_port"`
	HealthPort  int    `yaml:"health_port"`
}

// ProviderCredentials names the environment-sourced credential set for one
// cloud provider. Values themselves are never read from YAML.
type ProviderCredentials struct {
	Provider string `yaml:"provider"`
	Region   string `yaml:"region"`
	Bucket   string `yaml:"bucket"`
}

// ProvidersConfig configures the set of provider adapters to wire up.
type ProvidersConfig struct {
	Enabled       []string              `yaml:"enabled"`
	Timeouts      ProviderTimeoutConfig `yaml:"timeouts"`
	Retry         RetryConfig           `yaml:"retry"`
	CircuitBreak  CircuitBreakerConfig  `yaml:"circuit_breaker"`
	Credentials   []ProviderCredentials `yaml:"credentials"`
}

// ProviderTimeoutConfig configures per-call timeouts against a provider.
type ProviderTimeoutConfig struct {
	Connect time.Duration `yaml:"connect"`
	Call    time.Duration `yaml:"call"`
}

// RetryConfig mirrors pkg/retry.Config's tunables for YAML loading.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// CircuitBreakerConfig configures the per-route breaker manager.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// CatalogConfig configures the Object Catalog's refresh behavior.
type CatalogConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
}

// ClassifierConfig configures the Placement Classifier's thresholds.
type ClassifierConfig struct {
	ColdAccessDays      int     `yaml:"cold_access_days"`
	MinConfidence       float64 `yaml:"min_confidence"`
	MinMonthlySavingsUSD float64 `yaml:"min_monthly_savings_usd"`
}

// EngineConfig configures the Migration Engine's worker pool and durability.
type EngineConfig struct {
	MaxWorkers          int           `yaml:"max_workers"`
	MaxPerRoute         int           `yaml:"max_per_route"`
	MaxPerJob           int           `yaml:"max_per_job"`
	MaxAttempts         int           `yaml:"max_attempts"`
	DedupWindow         time.Duration `yaml:"dedup_window"`
	StorePath           string        `yaml:"store_path"`
	ProgressFlush       time.Duration `yaml:"progress_flush_interval"`
	ReadyQueueCapacity  int           `yaml:"ready_queue_capacity"`
	FileDeadlineSeconds int           `yaml:"file_deadline_seconds"`
	MaxActiveJobsPerOwner int         `yaml:"max_active_jobs_per_owner"`
	MaxFileListSize     int           `yaml:"max_file_list_size"`
}

// EventsConfig configures the Event Bus.
type EventsConfig struct {
	RingBufferSize     int           `yaml:"ring_buffer_size"`
	SubscriberQueueSize int          `yaml:"subscriber_queue_size"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
}

// AuthConfig configures the Auth/Identity component.
type AuthConfig struct {
	TokenTTL      time.Duration `yaml:"token_ttl"`
	StorePath     string        `yaml:"store_path"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
}

// NewDefault returns a configuration with the defaults named across spec §4
// and §6.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFile:     "",
			ListenAddr:  ":8080",
			MetricsPort: 9090,
			HealthPort:  8081,
		},
		Providers: ProvidersConfig{
			Enabled: []string{"aws", "azure", "gcp"},
			Timeouts: ProviderTimeoutConfig{
				Connect: 10 * time.Second,
				Call:    30 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     10 * time.Second,
				Multiplier:   2.0,
				Jitter:       true,
			},
			CircuitBreak: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          60 * time.Second,
			},
		},
		Catalog: CatalogConfig{
			RefreshInterval: 15 * time.Minute,
			MaxConcurrency:  8,
		},
		Classifier: ClassifierConfig{
			ColdAccessDays:       30,
			MinConfidence:        0.6,
			MinMonthlySavingsUSD: 0.01,
		},
		Engine: EngineConfig{
			MaxWorkers:            16,
			MaxPerRoute:           4,
			MaxPerJob:             4,
			MaxAttempts:           3,
			DedupWindow:           5 * time.Minute,
			StorePath:             "/var/lib/orchestrator/engine.db",
			ProgressFlush:         2 * time.Second,
			ReadyQueueCapacity:    500,
			FileDeadlineSeconds:   60,
			MaxActiveJobsPerOwner: 10,
			MaxFileListSize:       10000,
		},
		Events: EventsConfig{
			RingBufferSize:      1000,
			SubscriberQueueSize: 64,
			HeartbeatInterval:   15 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			StorePath:  "/var/lib/orchestrator/auth.db",
			BcryptCost: 12,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv applies ORCH_-prefixed environment variable overrides.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("ORCH_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("ORCH_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("ORCH_LISTEN_ADDR"); val != "" {
		c.Global.ListenAddr = val
	}
	if val := os.Getenv("ORCH_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}
	if val := os.Getenv("ORCH_HEALTH_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.HealthPort = port
		}
	}

	if val := os.Getenv("ORCH_PROVIDERS_ENABLED"); val != "" {
		c.Providers.Enabled = strings.Split(val, ",")
	}
	if val := os.Getenv("ORCH_PROVIDERS_RETRY_MAX_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Providers.Retry.MaxAttempts = n
		}
	}
	if val := os.Getenv("ORCH_PROVIDERS_CIRCUIT_BREAKER_ENABLED"); val != "" {
		c.Providers.CircuitBreak.Enabled = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("ORCH_CATALOG_REFRESH_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Catalog.RefreshInterval = d
		}
	}
	if val := os.Getenv("ORCH_CATALOG_MAX_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Catalog.MaxConcurrency = n
		}
	}

	if val := os.Getenv("ORCH_CLASSIFIER_COLD_ACCESS_DAYS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Classifier.ColdAccessDays = n
		}
	}
	if val := os.Getenv("ORCH_CLASSIFIER_MIN_CONFIDENCE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Classifier.MinConfidence = f
		}
	}

	if val := os.Getenv("ORCH_ENGINE_MAX_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.MaxWorkers = n
		}
	}
	if val := os.Getenv("ORCH_ENGINE_MAX_PER_ROUTE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.MaxPerRoute = n
		}
	}
	if val := os.Getenv("ORCH_ENGINE_STORE_PATH"); val != "" {
		c.Engine.StorePath = val
	}
	if val := os.Getenv("ORCH_ENGINE_DEDUP_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Engine.DedupWindow = d
		}
	}

	if val := os.Getenv("ORCH_EVENTS_RING_BUFFER_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Events.RingBufferSize = n
		}
	}
	if val := os.Getenv("ORCH_EVENTS_SUBSCRIBER_QUEUE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Events.SubscriberQueueSize = n
		}
	}

	if val := os.Getenv("ORCH_AUTH_TOKEN_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Auth.TokenTTL = d
		}
	}
	if val := os.Getenv("ORCH_AUTH_STORE_PATH"); val != "" {
		c.Auth.StorePath = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validProviders = map[string]bool{"aws": true, "azure": true, "gcp": true}

// Validate enforces the nonzero/range constraints the orchestrator needs to
// start safely.
func (c *Configuration) Validate() error {
	if len(c.Providers.Enabled) == 0 {
		return fmt.Errorf("providers.enabled must name at least one provider")
	}
	for _, p := range c.Providers.Enabled {
		if !validProviders[p] {
			return fmt.Errorf("unknown provider %q in providers.enabled", p)
		}
	}

	if c.Engine.MaxWorkers <= 0 {
		return fmt.Errorf("engine.max_workers must be greater than 0")
	}
	if c.Engine.MaxPerRoute <= 0 {
		return fmt.Errorf("engine.max_per_route must be greater than 0")
	}
	if c.Catalog.MaxConcurrency <= 0 {
		return fmt.Errorf("catalog.max_concurrency must be greater than 0")
	}
	if c.Engine.MaxAttempts <= 0 {
		return fmt.Errorf("engine.max_attempts must be greater than 0")
	}
	if c.Engine.ReadyQueueCapacity <= 0 {
		return fmt.Errorf("engine.ready_queue_capacity must be greater than 0")
	}

	if c.Global.MetricsPort == c.Global.HealthPort {
		return fmt.Errorf("metrics_port and health_port cannot be the same")
	}

	if c.Classifier.MinConfidence < 0 || c.Classifier.MinConfidence > 1 {
		return fmt.Errorf("classifier.min_confidence must be between 0 and 1")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}
