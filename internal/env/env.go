// Package env resolves the deployment environment the process runs in.
package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/indextts-api/internal/envvar"
)

// Environment is the deployment environment.
type Environment string

const (
	// Development enables human friendly console output.
	Development Environment = "development"

	// Production enables JSON output.
	Production Environment = "production"
)

// FromEnv reads the environment from INDEXTTS_ENV, defaulting to development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.IndexTTSEnv))
}

// Parse converts a raw value into an Environment.
func Parse(raw string) Environment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}
