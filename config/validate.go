// Package config loads and validates the daemon's JSON configuration
// document (spec.md §6's "Configuration options" table, expanded with the
// rest of the daemon's wiring), following the shape of the teacher's
// internal/config package: a compiled, embedded JSON Schema plus a
// DisallowUnknownFields decode into a plain struct.
package config

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/config.schema.json
var schemaFiles embed.FS

func loadSchema(s string) (io.ReadCloser, error) {
	return schemaFiles.Open("schemas/config.schema.json")
}

func init() {
	jsonschema.Loaders["embedFS"] = loadSchema
}

// Validate checks raw against the embedded config schema, compiling it
// fresh each call. Grounded on pkg/schema/validate.go's Validate(kind,
// reader) shape, narrowed to this repo's single schema.
func Validate(raw []byte) error {
	sch, err := jsonschema.Compile("embedFS://schemas/config.schema.json")
	if err != nil {
		return fmt.Errorf("config: compiling schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("config: decoding for validation: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: schema validation: %w", err)
	}
	return nil
}
