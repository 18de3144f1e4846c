package config

import (
	"os"
	"strings"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentStaging     = "staging"
)

const (
	// EnvironmentDevelopment exposes the canonical development environment
	// identifier. It can be used by callers outside the config package when
	// environment specific behaviour is required.
	EnvironmentDevelopment = environmentDevelopment
	// EnvironmentProduction exposes the canonical production environment
	// identifier.
	EnvironmentProduction = environmentProduction
	// EnvironmentStaging exposes the canonical staging environment
	// identifier.
	EnvironmentStaging = environmentStaging
)

var environmentAliases = map[string]string{
	"prod": environmentProduction,
	"stag": environmentStaging,
	"dev":  environmentDevelopment,
}

// Environment returns the normalized application environment. Unknown values
// fall back to development.
func Environment() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if raw == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[raw]; ok {
		return canonical
	}
	switch raw {
	case environmentDevelopment, environmentProduction, environmentStaging:
		return raw
	default:
		return environmentDevelopment
	}
}

// IsProduction reports whether the process runs with a production environment.
func IsProduction() bool {
	return Environment() == environmentProduction
}
