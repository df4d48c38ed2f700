// Command orchestrator runs the multi-cloud storage orchestrator as a
// single process: it wires the Provider Adapter Layer, Object Catalog,
// Access Predictor, Placement Classifier, Migration Job Engine, Event
// Stream Bus, Auth/Identity, and the Control API behind one HTTP listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudorch/orchestrator/internal/auth"
	"github.com/cloudorch/orchestrator/internal/catalog"
	"github.com/cloudorch/orchestrator/internal/circuit"
	"github.com/cloudorch/orchestrator/internal/config"
	"github.com/cloudorch/orchestrator/internal/controlapi"
	"github.com/cloudorch/orchestrator/internal/costmodel"
	"github.com/cloudorch/orchestrator/internal/engine"
	"github.com/cloudorch/orchestrator/internal/eventbus"
	"github.com/cloudorch/orchestrator/internal/metrics"
	"github.com/cloudorch/orchestrator/internal/placement"
	"github.com/cloudorch/orchestrator/internal/predictor"
	"github.com/cloudorch/orchestrator/internal/provider"
	"github.com/cloudorch/orchestrator/pkg/health"
	"github.com/cloudorch/orchestrator/pkg/profiling"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg := config.NewDefault()
	if *configPath != "" {
		if err := cfg.LoadFromFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "load config from env:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Global.LogLevel)
	if err := run(logger, cfg); err != nil {
		logger.Error("orchestrator exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

func run(logger *slog.Logger, cfg *config.Configuration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	healthMon := health.NewMonitor(health.DefaultConfig())
	for name := range providers {
		healthMon.RegisterComponent("provider." + string(name))
	}
	healthMon.RegisterComponent("engine")
	healthMon.RegisterComponent("catalog")

	collector, err := metrics.NewCollector(&metrics.Config{Enabled: true, Namespace: "orchestrator"})
	if err != nil {
		return fmt.Errorf("build metrics collector: %w", err)
	}

	cat := catalog.New()
	costs := costmodel.NewDefault()
	pred := predictor.New("", healthMon)
	classifier := placement.New(costs, pred, placement.Config{
		ColdAccessDays:       cfg.Classifier.ColdAccessDays,
		MinConfidence:        cfg.Classifier.MinConfidence,
		MinMonthlySavingsUSD: cfg.Classifier.MinMonthlySavingsUSD,
	})

	bus := eventbus.New(eventbus.Config{
		RingCapacity:            cfg.Events.RingBufferSize,
		SubscriberQueueCapacity: cfg.Events.SubscriberQueueSize,
		HeartbeatInterval:       cfg.Events.HeartbeatInterval,
	})
	defer bus.Close()

	breakers := circuit.NewManagerForRoutes(
		circuit.Config{
			Timeout:     cfg.Providers.CircuitBreak.Timeout,
			ReadyToTrip: failureRatioTrip(cfg.Providers.CircuitBreak.FailureThreshold),
		},
		circuit.Config{
			Timeout:     cfg.Providers.CircuitBreak.Timeout / 2,
			ReadyToTrip: failureRatioTrip(cfg.Providers.CircuitBreak.FailureThreshold / 2),
		},
	)

	authStore, err := auth.OpenBoltStore(cfg.Auth.StorePath)
	if err != nil {
		return fmt.Errorf("open auth store: %w", err)
	}
	defer authStore.Close()
	authSvc := auth.New(authStore, auth.Config{
		Secret:     []byte(requireSecret()),
		BcryptCost: cfg.Auth.BcryptCost,
		TokenTTL:   cfg.Auth.TokenTTL,
	})

	jobStore, err := engine.OpenBoltJobStore(cfg.Engine.StorePath)
	if err != nil {
		return fmt.Errorf("open engine store: %w", err)
	}
	defer jobStore.Close()

	eng := engine.New(engine.Config{
		MaxWorkers:            cfg.Engine.MaxWorkers,
		MaxPerJob:             cfg.Engine.MaxPerJob,
		MaxPerRoute:           cfg.Engine.MaxPerRoute,
		MaxAttempts:           cfg.Engine.MaxAttempts,
		ReadyQueueCapacity:    cfg.Engine.ReadyQueueCapacity,
		FileDeadline:          time.Duration(cfg.Engine.FileDeadlineSeconds) * time.Second,
		DedupWindow:           cfg.Engine.DedupWindow,
		ProgressFlush:         cfg.Engine.ProgressFlush,
		MaxActiveJobsPerOwner: cfg.Engine.MaxActiveJobsPerOwner,
		MaxFileListSize:       cfg.Engine.MaxFileListSize,
	}, jobStore, providers, bus, cat, breakers, collector, logger.With(slog.String("component", "engine")))

	if err := eng.Resume(ctx); err != nil {
		return fmt.Errorf("resume migration jobs: %w", err)
	}
	eng.Start(ctx)
	defer eng.Stop()

	memMon := profiling.NewMemoryMonitor(profiling.DefaultMonitorConfig(), profiling.DefaultAlertThresholds())

	apiCfg := controlapi.DefaultConfig()
	apiCfg.Address = cfg.Global.ListenAddr
	server := controlapi.New(apiCfg, authSvc, cat, classifier, costs, eng, bus, collector, healthMon, memMon, providers, logger.With(slog.String("component", "controlapi")))

	go scheduleCatalogRefreshes(ctx, cfg, cat, classifier, providers, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildProviders(ctx context.Context, cfg *config.Configuration) (map[provider.Name]provider.Adapter, error) {
	providers := make(map[provider.Name]provider.Adapter)
	for _, name := range cfg.Providers.Enabled {
		switch provider.Name(name) {
		case provider.AWS:
			adapter, err := provider.NewAwsAdapter(ctx, os.Getenv("ORCH_AWS_REGION"))
			if err != nil {
				return nil, err
			}
			providers[provider.AWS] = adapter
		case provider.Azure:
			adapter, err := provider.NewAzureAdapter(os.Getenv("ORCH_AZURE_STORAGE_ACCOUNT"))
			if err != nil {
				return nil, err
			}
			providers[provider.Azure] = adapter
		case provider.GCP:
			adapter, err := provider.NewGcpAdapter(ctx)
			if err != nil {
				return nil, err
			}
			providers[provider.GCP] = adapter
		}
	}
	return providers, nil
}

// scheduleCatalogRefreshes refreshes every configured provider's catalog
// on cfg.Catalog.RefreshInterval until ctx is canceled, then runs the
// background classification pass over the entries it just refreshed so
// a cached Recommendation is available to any consumer that reads the
// catalog directly (e.g. GET /catalog/objects) without waiting on a
// live classify call. The containers list comes from the credentials
// block's bucket names.
func scheduleCatalogRefreshes(ctx context.Context, cfg *config.Configuration, cat *catalog.Catalog, classifier *placement.Classifier, providers map[provider.Name]provider.Adapter, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.Catalog.RefreshInterval)
	defer ticker.Stop()

	containersByProvider := make(map[provider.Name][]string)
	for _, cred := range cfg.Providers.Credentials {
		containersByProvider[provider.Name(cred.Provider)] = append(containersByProvider[provider.Name(cred.Provider)], cred.Bucket)
	}

	refresh := func() {
		now := time.Now()
		for name, adapter := range providers {
			containers := containersByProvider[name]
			if len(containers) == 0 {
				continue
			}
			if _, err := cat.Refresh(ctx, name, adapter, containers, now); err != nil {
				logger.Error("scheduled catalog refresh failed", slog.String("provider", string(name)), slog.Any("error", err))
				continue
			}
			classifyCatalog(cat, classifier, name, now)
		}
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// classifyCatalog runs the Placement Classifier over every entry the
// catalog currently holds for providerName and caches the result on the
// entry, so a reader of the catalog sees a recommendation as of the last
// refresh without triggering a classification of its own.
func classifyCatalog(cat *catalog.Catalog, classifier *placement.Classifier, providerName provider.Name, now time.Time) {
	for _, entry := range cat.List(catalog.Filter{Provider: providerName}) {
		rec := classifier.Classify(entry, providerName, now)
		cat.SetRecommendation(providerName, entry.Ref.Container, entry.Ref.Key, rec)
	}
}

// failureRatioTrip builds a ReadyToTrip function that opens the breaker
// once at least threshold requests have been seen in the current window
// and at least half of them failed. A non-positive threshold falls back
// to the breaker's own default.
func failureRatioTrip(threshold int) func(circuit.Counts) bool {
	if threshold <= 0 {
		return nil
	}
	return func(counts circuit.Counts) bool {
		return counts.Requests >= uint32(threshold) &&
			float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
	}
}

func requireSecret() string {
	secret := os.Getenv("ORCH_AUTH_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "ORCH_AUTH_SECRET must be set")
		os.Exit(1)
	}
	return secret
}
