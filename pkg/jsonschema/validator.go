// Package jsonschema validates decoded documents against a JSON Schema.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// FieldError is a single schema violation. Location is a JSON pointer into
// the validated document, e.g. /tasks/0/weight.
type FieldError struct {
	Location string
	Message  string
}

func (e *FieldError) Error() string {
	return e.Location + ": " + e.Message
}

// Schema is a compiled JSON Schema.
type Schema struct {
	schema *jsonschema.Schema
}

// Compile parses and compiles a schema document. name is used as the
// resource URL in error messages.
func Compile(name string, schema []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: compiled}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(name string, schema []byte) *Schema {
	s, err := Compile(name, schema)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a decoded document (maps, slices and scalars as produced
// by encoding/json). It returns nil when the document is valid.
func (s *Schema) Validate(doc interface{}) ValidationErrors {
	err := s.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var validationErr *jsonschema.ValidationError
	if errors.As(err, &validationErr) {
		return extractValidationErrors(validationErr)
	}
	return ValidationErrors{err}
}

// ValidateJSON decodes data and validates it.
func (s *Schema) ValidateJSON(data []byte) ValidationErrors {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ValidationErrors{fmt.Errorf("invalid JSON: %w", err)}
	}
	return s.Validate(doc)
}

// Validate compiles schemaStr and reports whether jsonStr satisfies it.
// Schema and JSON syntax problems are returned as errors.
func Validate(jsonStr, schemaStr string) (bool, error) {
	s, err := Compile("schema.json", []byte(schemaStr))
	if err != nil {
		return false, err
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return false, fmt.Errorf("invalid JSON: %w", err)
	}
	return s.Validate(doc) == nil, nil
}

// extractValidationErrors flattens the leaf causes of a validation error.
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	if len(err.Causes) == 0 {
		location := err.InstanceLocation
		if location == "" {
			location = "/"
		}
		return ValidationErrors{&FieldError{Location: location, Message: err.Message}}
	}

	var errs ValidationErrors
	for _, cause := range err.Causes {
		errs = append(errs, extractValidationErrors(cause)...)
	}
	return errs
}
