// Package config loads termdeck configuration from environment variables
// with kelseyhightower/envconfig. Every field carries a default tag; Default
// mirrors those tags for callers that skip the environment.
package config
