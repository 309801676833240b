package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/afero"
)

// Validator checks fetched data against a compiled JSON Schema
type Validator struct {
	location string
	schema   *jsonschema.Schema
}

// LoadValidator reads and compiles the JSON Schema at path. A nil fs reads the OS filesystem.
func LoadValidator(fs afero.Fs, path string) (*Validator, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	return NewValidator(filepath.ToSlash(path), data)
}

// NewValidator compiles schema, identified by location in error messages
func NewValidator(location string, schema []byte) (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", location, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(location, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema %s: %w", location, err)
	}
	compiled, err := compiler.Compile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", location, err)
	}
	return &Validator{location: location, schema: compiled}, nil
}

// Validate reports whether data satisfies the schema
func (v *Validator) Validate(data map[string]any) error {
	// Round trip through JSON so values like time.Time are checked in their JSON form
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode data for validation: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode data for validation: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("data does not match schema %s: %w", v.location, err)
	}
	return nil
}

// validatingSource checks every fetch against a schema
type validatingSource struct {
	Source
	validator *Validator
}

// WithValidation wraps src so that data failing validator is a fetch error
func WithValidation(src Source, validator *Validator) Source {
	if validator == nil {
		return src
	}
	return &validatingSource{Source: src, validator: validator}
}

func (s *validatingSource) Fetch(ctx context.Context) (map[string]any, error) {
	data, err := s.Source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(data); err != nil {
		return nil, fetchError(s.Type(), err)
	}
	return data, nil
}

// Close closes the wrapped source when it holds resources
func (s *validatingSource) Close() error {
	if closer, ok := s.Source.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
