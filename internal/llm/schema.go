package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

// fieldSchemas maps each field type to the JSON schema its cleaned value must satisfy.
var fieldSchemas = map[niche.FieldType]map[string]any{
	niche.FieldString:  {"type": "string", "minLength": 1},
	niche.FieldText:    {"type": "string"},
	niche.FieldNumber:  {"type": "number"},
	niche.FieldDate:    {"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
	niche.FieldBoolean: {"type": "boolean"},
	niche.FieldArray:   {"type": "array"},
}

var (
	compileOnce sync.Once
	compiled    map[niche.FieldType]*jsonschema.Schema
	compileErr  error
)

func compileFieldSchemas() (map[niche.FieldType]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[niche.FieldType]*jsonschema.Schema, len(fieldSchemas))
		compiler := jsonschema.NewCompiler()
		for t, s := range fieldSchemas {
			b, err := json.Marshal(s)
			if err != nil {
				compileErr = fmt.Errorf("marshal schema %s: %w", t, err)
				return
			}
			url := string(t) + ".json"
			if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
				compileErr = fmt.Errorf("add schema %s: %w", t, err)
				return
			}
			schema, err := compiler.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", t, err)
				return
			}
			compiled[t] = schema
		}
	})
	return compiled, compileErr
}

// ValidateType reports whether a cleaned value satisfies the JSON schema of its field type.
// Unknown field types accept any value.
func ValidateType(t niche.FieldType, v any) error {
	schemas, err := compileFieldSchemas()
	if err != nil {
		return err
	}
	s, ok := schemas[t]
	if !ok {
		return nil
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("value does not match %s: %w", t, err)
	}
	return nil
}
