// Package config loads YAML configuration files, expanding ${VAR}
// references from the environment so secrets like API tokens never live
// in the file itself.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is implemented by configs that can check themselves after
// loading.
type Validator interface {
	Validate() error
}

// Load reads filename, expands environment variables, unmarshals the
// YAML into target, and validates it when target implements Validator.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expandedData := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}
