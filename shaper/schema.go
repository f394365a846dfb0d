package shaper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaMismatch reports a document that does not satisfy its JSON Schema.
var ErrSchemaMismatch = errors.New("shaper: document does not match schema")

// Validator checks JSON documents against JSON Schemas.
// It caches compiled schemas keyed by their compact JSON form and is safe for concurrent use.
type Validator struct {
	cache sync.Map // map[string]*gojsonschema.Schema
}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks doc against schema. schema may be json.RawMessage, []byte, a JSON string
// or any value that marshals to a schema (e.g. map[string]any).
func (v *Validator) Validate(schema any, doc string) error {
	compiled, err := v.compile(schema)
	if err != nil {
		return fmt.Errorf("shaper: invalid schema definition: %w", err)
	}
	result, err := compiled.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("shaper: validation execution failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, dumpErrors(errs))
}

func (v *Validator) compile(schema any) (*gojsonschema.Schema, error) {
	raw, err := schemaBytes(schema)
	if err != nil {
		return nil, err
	}
	key := string(raw)
	if val, ok := v.cache.Load(key); ok {
		return val.(*gojsonschema.Schema), nil
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}

func schemaBytes(schema any) ([]byte, error) {
	var raw []byte
	switch s := schema.(type) {
	case json.RawMessage:
		raw = s
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// dumpErrors joins the first three errors and counts the rest.
func dumpErrors(errs []string) string {
	if len(errs) > 3 {
		return strings.Join(errs[:3], "; ") + fmt.Sprintf("; ... and %d more", len(errs)-3)
	}
	return strings.Join(errs, "; ")
}
