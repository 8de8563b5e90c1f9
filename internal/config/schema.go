// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the generated config schema.
const SchemaID = "https://holomush.dev/schemas/identity-config.schema.json"

var (
	compiledOnce   sync.Once
	compiledSchema *jschema.Schema
	compileErr     error
)

var durationType = reflect.TypeOf(time.Duration(0))

// GenerateSchema generates a JSON Schema for the YAML config file.
// Every key is optional; unknown keys are rejected.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		FieldNameTag:               "koanf",
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
					Description: "Go duration, e.g. 500ms or 1m30s",
				}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Identity Service Configuration"
	schema.Description = "Schema for the identity service config.yaml"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}
	return data, nil
}

// ValidateYAML validates config file contents against the schema.
// An empty document is valid.
func ValidateYAML(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_INVALID_YAML").Wrap(err)
	}
	if doc == nil {
		return nil
	}

	sch, err := compiled()
	if err != nil {
		return err
	}
	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code("CONFIG_SCHEMA_VIOLATION").Wrap(err)
	}
	return nil
}

func compiled() (*jschema.Schema, error) {
	compiledOnce.Do(func() {
		compiledSchema, compileErr = compile()
	})
	return compiledSchema, compileErr
}

func compile() (*jschema.Schema, error) {
	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}

	var schemaData any
	if err := json.Unmarshal(schemaBytes, &schemaData); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("operation", "parse schema").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", schemaData); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("operation", "add resource").Wrap(err)
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	return sch, nil
}

// toJSONTypes normalizes yaml.v3 output for the validator. Scalars that
// are not JSON types, such as timestamps, go through a JSON round trip.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = toJSONTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = toJSONTypes(v)
		}
		return out
	case string, int, int64, float64, bool, nil:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return val
		}
		return out
	}
}
