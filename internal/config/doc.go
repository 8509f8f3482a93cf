// Package config handles configuration loading for the onboarding console
// and the development agent service.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Absent keys take defaults, and the result is validated before use.
//
// # Configuration File
//
// Locations (in order):
//
//  1. The --config flag
//  2. Path from COVEN_ONBOARD_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/coven/onboard.yaml (or ~/.config/coven/onboard.yaml)
//
// A missing file at the default location is not an error; defaults apply.
// Files ending in .toml are decoded as TOML, anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	console:
//	  project_id: "${COVEN_PROJECT}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	stream:
//	  retry_delays: ["500ms", "1.5s", "3s"]
//	manifest:
//	  retry_delays: ["250ms", "500ms", "1s"]
//	  timeout: "15s"
//
// # Configuration Sections
//
// Console:
//
//	console:
//	  base_url: "http://127.0.0.1:8090"
//	  project_id: "proj-1"
//
// Tool listing cache:
//
//	tools:
//	  cache_ttl: "5m"
//	  cache_size: 16
//
// Development agent:
//
//	agent:
//	  http_addr: "127.0.0.1:8090"
//	  database_path: "~/.local/share/coven/onboard.db"
//	  poll_interval: "100ms"
//	  idle_timeout: "5m"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// The same sections in TOML:
//
//	[console]
//	base_url = "http://127.0.0.1:8090"
//	project_id = "proj-1"
//
//	[stream]
//	retry_delays = ["500ms", "1.5s", "3s"]
//
// # Usage
//
//	cfg, path, err := config.LoadOrDefault(flagPath)
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
package config
