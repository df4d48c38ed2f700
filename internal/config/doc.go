/*
Package config loads orchestrator configuration from YAML with ORCH_-prefixed
environment variable overrides, in that order of precedence (env wins).

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/orchestrator/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Non-reloadable settings (ports, store paths, provider credentials) are read
once at startup; everything else can be mutated on the Configuration value
between Validate calls.
*/
package config
