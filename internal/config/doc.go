// Package config handles configuration loading for passgate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PASSGATE_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/passgate/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	session:
//	  secret: "${PASSGATE_SESSION_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	registration:
//	  window: "2m"
//	session:
//	  duration: "24h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Credential store:
//
//	store:
//	  path: "/var/lib/passgate/users.json"
//
// Relying party identity presented to authenticators:
//
//	relying_party:
//	  id: "example.com"
//	  name: "Example Corp"
//	  origins:
//	    - "https://example.com"
//
// Registration ceremony:
//
//	registration:
//	  window: "2m"              # pending registrations expire after this
//	  counter_policy: "lenient" # strict or lenient handling of zero counters
//
// Sessions:
//
//	session:
//	  secret: "${PASSGATE_SESSION_SECRET}"  # HS256 signing key, min 32 chars
//	  duration: "24h"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Relying party id, name, and origins presence
//   - Session secret minimum length (32 characters)
//   - Duration format validity
//   - Counter policy values
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/passgate/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
