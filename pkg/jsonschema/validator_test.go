package jsonschema

import (
	"strings"
	"testing"
)

const personSchema = `{
	"type": "object",
	"properties": {
		"name": { "type": "string" },
		"age": { "type": "integer", "minimum": 0 }
	},
	"required": ["name"],
	"additionalProperties": false
}`

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		schema        string
		json          string
		expectedValid bool
		expectedError bool
	}{
		{"Valid simple object", personSchema, `{"name": "John Doe", "age": 30}`, true, false},
		{"Missing required property", personSchema, `{"age": 30}`, false, false},
		{"Wrong type", personSchema, `{"name": 42}`, false, false},
		{"Additional property", personSchema, `{"name": "x", "email": "x@example.com"}`, false, false},
		{"Invalid JSON", personSchema, `{"name": `, false, true},
		{"Invalid schema", `{"type": 12}`, `{}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := Validate(tt.json, tt.schema)
			if (err != nil) != tt.expectedError {
				t.Fatalf("Validate() error = %v, expectedError %v", err, tt.expectedError)
			}
			if valid != tt.expectedValid {
				t.Errorf("Validate() = %v, want %v", valid, tt.expectedValid)
			}
		})
	}
}

func TestSchema_ValidateJSON_CollectsAllErrors(t *testing.T) {
	s := MustCompile("person.json", []byte(personSchema))

	if errs := s.ValidateJSON([]byte(`{"name": "Jane"}`)); errs != nil {
		t.Fatalf("expected valid document, got %v", errs)
	}

	errs := s.ValidateJSON([]byte(`{"name": 1, "age": -2}`))
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	msg := errs.Error()
	for _, want := range []string{"/name", "/age"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestSchema_ValidateJSON_BadInput(t *testing.T) {
	s := MustCompile("person.json", []byte(personSchema))
	errs := s.ValidateJSON([]byte("not json"))
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "invalid JSON") {
		t.Errorf("expected a single invalid JSON error, got %v", errs)
	}
}

func TestMustCompile_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid schema")
		}
	}()
	MustCompile("bad.json", []byte(`{"type": 12}`))
}

func TestValidationErrors_Error(t *testing.T) {
	var empty ValidationErrors
	if empty.Error() != "" {
		t.Errorf("empty errors should render as empty string, got %q", empty.Error())
	}
}

func TestSchema_Validate_FieldErrors(t *testing.T) {
	s := MustCompile("person.json", []byte(personSchema))
	errs := s.Validate(map[string]interface{}{"name": "x", "age": -1.0})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	fe, ok := errs[0].(*FieldError)
	if !ok {
		t.Fatalf("expected *FieldError, got %T", errs[0])
	}
	if fe.Location != "/age" {
		t.Errorf("Location = %q, want /age", fe.Location)
	}
	if fe.Message == "" {
		t.Error("expected a message")
	}
}
