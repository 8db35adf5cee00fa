package config

import (
	"os"
	"strings"
)

const appEnvVar = "APP_ENV"

// Environment is the deployment heatflow runs in, read from APP_ENV.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

var environmentAliases = map[string]Environment{
	"dev":         Development,
	"prod":        Production,
	"producation": Production,
	"stag":        Staging,
	"stagging":    Staging,
}

// ParseEnvironment normalises s. Empty means development; unknown names are
// kept as given and behave like development.
func ParseEnvironment(s string) Environment {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Development
	}
	if env, ok := environmentAliases[s]; ok {
		return env
	}
	return Environment(s)
}

// CurrentEnvironment returns the environment named by APP_ENV.
func CurrentEnvironment() Environment {
	return ParseEnvironment(os.Getenv(appEnvVar))
}

// ProductionLike environments reject the synthetic feed and an unthrottled
// dashboard.
func (e Environment) ProductionLike() bool {
	return e == Production || e == Staging
}

// configPath is config/config.<env>.yml next to defaultPath.
func (e Environment) configPath(defaultPath string) string {
	return strings.TrimSuffix(defaultPath, ".yml") + "." + string(e) + ".yml"
}

// resolveEnvSpecificPath swaps defaultPath for env's variant when that file
// exists. Explicit paths are left alone.
func resolveEnvSpecificPath(path, defaultPath string, env Environment, exists func(string) bool) string {
	if path == "" {
		path = defaultPath
	}
	if path != defaultPath || !env.ProductionLike() {
		return path
	}
	if candidate := env.configPath(defaultPath); exists(candidate) {
		return candidate
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
