package manifest_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugforge/plugforge/application/manifest"
)

func TestParseValidManifest(t *testing.T) {
	yaml := `
name: "string-transformer"
version: "1.2.0"
description: "demo transform plugin"
exports:
  execute: "transform"
  collect: "__collect"
`
	m, err := manifest.Parse([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, "string-transformer", m.Name)
	assert.Equal(t, "1.2.0", m.Version)
	assert.Equal(t, "transform", m.Exports.Execute)
	assert.Equal(t, "__collect", m.Exports.Collect)
	assert.Empty(t, m.Exports.Alloc, "unset overrides stay empty")
}

func TestParseMissingName(t *testing.T) {
	yaml := `
version: "1.0.0"
`
	_, err := manifest.Parse([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest validation failed")
}

func TestParseInvalidVersion(t *testing.T) {
	yaml := `
name: "p"
version: "not-a-version"
`
	_, err := manifest.Parse([]byte(yaml))
	require.Error(t, err)
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := manifest.Parse([]byte("name: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse manifest")
}

func TestSchema(t *testing.T) {
	data, err := manifest.Schema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "version")
	assert.Contains(t, props, "exports")
}
