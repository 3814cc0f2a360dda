package config

import (
	"os"
	"strings"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// GetEnvironment returns SCENTFLOW_SERVER_ENVIRONMENT lowercased, defaulting to development.
func GetEnvironment() string {
	env := os.Getenv("SCENTFLOW_SERVER_ENVIRONMENT")
	if env == "" {
		return EnvDevelopment
	}
	return strings.ToLower(env)
}

// IsProductionLike reports whether env must satisfy production configuration rules.
func IsProductionLike(env string) bool {
	return env == EnvStaging || env == EnvProduction
}
