package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/ttsd/internal/envvar"
)

// Environment is the runtime environment the daemon is running in.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	Test        Environment = "test"
)

// FromEnv reads the environment from TTSD_ENV, defaulting to development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.TTSDEnv))
}

// Parse converts a raw string into an Environment. Unknown values map to development.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "production":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}

func (e Environment) String() string {
	return string(e)
}
