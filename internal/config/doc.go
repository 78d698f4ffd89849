// Package config handles configuration loading for the convoy coordinator.
//
// # Configuration File
//
// Default location:
//
//  1. Path from CONVOY_CONFIG environment variable
//  2. ~/.config/convoy/config.yaml
//
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Keys missing from the file keep the values from Default.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${CONVOY_DATA}/convoy.db"
//
// A .env file in the same directory as the config is loaded first.
// Variables already set in the process environment take precedence.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	simulation:
//	  latency: "300ms"
//	chat:
//	  duplicate_window: "2s"
//
// An empty duration string means zero. chat.duplicate_window is off
// unless set.
//
// # Example
//
//	database:
//	  driver: sqlite
//	  path: ~/.local/share/convoy/convoy.db
//	  key: convoy-state
//	logging:
//	  level: warn
//	  format: text
//	simulation:
//	  latency: 300ms
//	chat:
//	  duplicate_window: ""
//	auth:
//	  demo_password: demo
//	seed:
//	  enabled: true
package config
