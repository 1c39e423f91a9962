// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/SP4567/smart-home-whisper/pkg/util"
)

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// ValidateWithSchema checks a configuration file against the embedded JSON
// schema: section and key names, value types, enums and ranges. It runs
// before Load in -validate-config so typos in key names are reported
// instead of silently ignored.
func ValidateWithSchema(configPath string) error {
	data, err := util.ReadFileSafely(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return validateDocument(data)
}

func validateDocument(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("invalid embedded schema: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	// An empty file means "all defaults".
	if doc == nil {
		doc = map[string]any{}
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert config to JSON: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(docJSON))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		return formatValidationErrors(result.Errors())
	}
	return nil
}

func formatValidationErrors(errs []gojsonschema.ResultError) error {
	var b strings.Builder
	b.WriteString("configuration validation errors:\n")
	for i, e := range errs {
		fmt.Fprintf(&b, "  %d. %s: %s\n", i+1, e.Field(), e.Description())
	}
	return fmt.Errorf("%s", b.String())
}

// GetSchemaJSON returns the embedded JSON schema.
func GetSchemaJSON() string {
	return string(schemaJSON)
}
