// Package config loads, validates and persists pkgsync settings.
//
// Settings are stored as YAML. Validation fills defaults (timeout, medium
// name, downloads directory) so callers always see a complete configuration.
package config
