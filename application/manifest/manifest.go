// Package manifest loads and validates plugin manifest documents: the
// YAML file a plugin author ships alongside the bytecode module, declaring
// its name, version, and any guest export-name overrides.
package manifest

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/plugforge/plugforge/domain/entities"
)

// validate is a package-level singleton for better performance.
// Creating a new validator on each call is expensive; reusing is recommended.
var validate = validator.New()

// Parse unmarshals and validates a plugin manifest. The name is required
// and the version must be a semantic version.
func Parse(data []byte) (*entities.Manifest, error) {
	var m entities.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}
	return &m, nil
}
