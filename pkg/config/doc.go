// Package config defines the cluster and web-hook plugins' configuration
// schema and loads it from YAML: read the file, parse, validate, wrap
// errors with sentinel causes callers can match on.
package config
