// Package jsonschema validates JSON documents against JSON Schemas.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled schema. It is safe for concurrent use.
type Schema struct {
	schema *jsonschema.Schema
}

// Compile parses and compiles schemaStr once so hot paths only validate.
func Compile(name, schemaStr string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := name + ".json"

	if err := compiler.AddResource(url, strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	return &Schema{schema: schema}, nil
}

// Validate checks document against the schema. It returns nil when valid,
// ValidationErrors when the document violates the schema, or a plain error
// when document is not JSON.
func (s *Schema) Validate(document []byte) error {
	dec := json.NewDecoder(bytes.NewReader(document))
	dec.UseNumber()

	var data interface{}
	if err := dec.Decode(&data); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	err := s.schema.Validate(data)
	if err == nil {
		return nil
	}
	if validationErr, ok := err.(*jsonschema.ValidationError); ok {
		return extractValidationErrors(validationErr)
	}
	return ValidationErrors{err}
}

// extractValidationErrors flattens a jsonschema.ValidationError tree
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var errors ValidationErrors

	if err.Message != "" {
		errors = append(errors, fmt.Errorf("validation error at %s: %s", err.InstanceLocation, err.Message))
	}

	for _, childErr := range err.Causes {
		errors = append(errors, extractValidationErrors(childErr)...)
	}

	return errors
}
