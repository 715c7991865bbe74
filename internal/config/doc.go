// Package config provides configuration management for the Quorum routing engine.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.quorum/config.yaml and is automatically
// created with sensible defaults on first use. The file structure mirrors
// the Go structs defined in this package.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the QUORUM_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - QUORUM_MARKETPLACE_API_KEY=sk-or-...
//   - QUORUM_MARKETPLACE_ENDPOINT=https://openrouter.ai/api
//   - QUORUM_LOGGING_LEVEL=debug
//   - QUORUM_MAINTENANCE_CRON_SPEC="0 4 * * *"
//
// # Security Best Practices
//
// The marketplace API key should be stored in an environment variable rather
// than in the config file to prevent accidental exposure:
//
//	export QUORUM_MARKETPLACE_API_KEY=sk-or-...
//
// # Configuration Sections
//
//   - Marketplace: model marketplace endpoint and credentials
//   - Routing: consensus classification thresholds and trigger policy
//   - Selection: candidate pool sizes and scoring weights
//   - Pipeline: per-stage request limits and extraction queue size
//   - Maintenance: upkeep interval, cron schedule, replacement heuristics
//   - Logging: log level and output file configuration
//   - Data: local database directory
//
// # Path Expansion
//
// The package automatically expands ~ to the user's home directory in
// all path configurations, making config files portable across systems.
//
// # Thread Safety
//
// Config instances are not thread-safe. If you need concurrent access,
// wrap the config in a sync.RWMutex or create separate instances.
package config
