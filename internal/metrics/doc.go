/*
Package metrics exposes the orchestrator's Prometheus series: provider
adapter call latency and errors, migration transfer duration and bytes,
event bus publish/drop counts, and catalog refresh duration.

	collector, err := metrics.NewCollector(&metrics.Config{Enabled: true, Namespace: "orchestrator"})
	if err != nil {
		log.Fatal(err)
	}
	mux.Handle("/metrics", collector.Handler())

Record calls are no-ops when the collector is disabled, so callers never need
to branch on configuration.
*/
package metrics
