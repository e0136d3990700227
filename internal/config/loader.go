package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/hive/pkg/jsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var runSchema = jsonschema.MustCompile("run.schema.json", schemaJSON)

// Schema returns the JSON Schema run files are checked against.
func Schema() []byte {
	return schemaJSON
}

// Load reads and parses a run file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes, schema-checks, defaults and validates run file data.
//
// Structural and semantic problems are returned together as a
// *ValidationErrors.
func Parse(data []byte, path string) (*Config, error) {
	doc, err := decode(data, path)
	if err != nil {
		return nil, err
	}

	// Normalise through JSON so the schema sees JSON types for YAML input.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}

	if verrs := runSchema.ValidateJSON(normalized); verrs != nil {
		return nil, schemaErrors(verrs)
	}

	var cfg Config
	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(data []byte, path string) (interface{}, error) {
	var doc interface{}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}
	return doc, nil
}

func schemaErrors(verrs jsonschema.ValidationErrors) *ValidationErrors {
	errs := &ValidationErrors{}
	for _, err := range verrs {
		var fe *jsonschema.FieldError
		if errors.As(err, &fe) {
			errs.Add(pointerToField(fe.Location), fe.Message)
			continue
		}
		errs.Add("", err.Error())
	}
	return errs
}

// pointerToField turns /tasks/0/requests/1/method into
// tasks[0].requests[1].method.
func pointerToField(pointer string) string {
	var sb strings.Builder
	for _, part := range strings.Split(strings.Trim(pointer, "/"), "/") {
		if part == "" {
			continue
		}
		if _, err := strconv.Atoi(part); err == nil {
			sb.WriteString("[" + part + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")
		sb.WriteString(part)
	}
	return sb.String()
}

// ApplyDefaults fills in unset optional fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Wait.Type == "" {
		cfg.Wait.Type = "none"
	}
	for i := range cfg.Tasks {
		task := &cfg.Tasks[i]
		if task.Weight == 0 {
			task.Weight = 1
		}
		for j := range task.Requests {
			req := &task.Requests[j]
			if req.Method == "" {
				req.Method = "GET"
			}
			req.Method = strings.ToUpper(req.Method)
		}
	}
}

// Marshal encodes cfg as YAML, or as indented JSON when format is "json".
func Marshal(cfg *Config, format string) ([]byte, error) {
	if strings.EqualFold(format, "json") {
		return json.MarshalIndent(cfg, "", "  ")
	}
	return yaml.Marshal(cfg)
}
