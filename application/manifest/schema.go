package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/plugforge/plugforge/domain/entities"
)

// Schema generates the JSON Schema for the plugin manifest document. It uses
// the `invopop/jsonschema` library to reflect on the manifest struct and
// produce a standard JSON Schema (Draft 2020-12) plugin authors can validate
// against.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
	}
	schema := reflector.Reflect(&entities.Manifest{})

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}
