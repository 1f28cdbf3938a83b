package config

import (
	"os"
	"regexp"

	"github.com/netherd/inetproxy/pkg/types"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} and ${VAR_NAME:-default}
var envVarPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(:-([^}]*))?\}`)

// interpolateEnvVars replaces environment variable placeholders with their
// values. Supports ${VAR_NAME} and ${VAR_NAME:-default_value} syntax.
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) >= 4 && parts[3] != "" {
			defaultValue = parts[3]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// LoadFromFile loads a YAML configuration file over the defaults.
// Environment variable placeholders inside the file are interpolated
// before parsing.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return nil, types.NewError(types.ErrCodeInvalidArgument,
			"configuration file path cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeNotFound,
			"failed to read configuration file: "+path, err)
	}

	cfg := Default()
	interpolated := interpolateEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, types.WrapError(types.ErrCodeInvalidArgument,
			"invalid YAML syntax in "+path, err)
	}

	return cfg, nil
}
