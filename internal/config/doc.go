/*
Package config provides configuration management for the AMR metadata passes.

Sources are applied in increasing priority:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (AMRMETA_*)                       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│      (YAML, or TOML by .toml extension)     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Sections

	global:
	  log_level: INFO       # DEBUG, INFO, WARN, ERROR
	  log_format: text      # text or json
	refinement:
	  epsilon: 0.000001     # tolerance when rounding refinement ratios
	exchange:
	  max_records: 1048576  # largest metadata buffer accepted from a peer
	distributed:
	  ranks: 1              # in-process group size when no controller is given
	monitoring:
	  metrics:
	    enabled: true
	    namespace: amrmeta
	    port: 0             # 0 keeps the registry but serves no endpoint
	    path: /metrics

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("amrmeta.yaml"); err != nil {
		return err
	}
	_ = cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

Environment overrides: AMRMETA_LOG_LEVEL, AMRMETA_LOG_FORMAT, AMRMETA_RATIO_EPSILON,
AMRMETA_MAX_RECORDS, AMRMETA_RANKS, AMRMETA_METRICS_ENABLED, AMRMETA_METRICS_PORT.
Malformed numeric values are ignored and the previous value is kept.
*/
package config
