package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache holds compiled schemas keyed by their raw source text, so
// agents that share a config_schema (a common tool vendor's template)
// only pay the compile cost once.
var schemaCache sync.Map

func compileConfigSchema(raw []byte) (*jsonschema.Schema, error) {
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("agent.config_schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// validateConfigAgainstSchema validates config against rawSchema, a JSON
// Schema document. It round-trips config through JSON first so the map
// of arbitrary Go values is checked exactly as the schema author would
// see it encoded on the wire.
func validateConfigAgainstSchema(rawSchema []byte, config map[string]any) error {
	schema, err := compileConfigSchema(rawSchema)
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode agent config: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode agent config: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("agent config invalid: %w", err)
	}
	return nil
}
