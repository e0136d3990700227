package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/hive/internal/swarm"
)

const minimalYAML = `
host: http://localhost:4000
users: 5
spawnRate: 1
tasks:
  - name: health
    requests:
      - path: /v1/healthcheck
`

func TestParse_MinimalYAML(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML), "run.yaml")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Host != "http://localhost:4000" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.Users != 5 || cfg.SpawnRate != 1 {
		t.Errorf("Users/SpawnRate = %d/%g, want 5/1", cfg.Users, cfg.SpawnRate)
	}
	if cfg.Wait.Type != "none" {
		t.Errorf("Wait.Type = %q, want none", cfg.Wait.Type)
	}
	if len(cfg.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(cfg.Tasks))
	}
	if cfg.Tasks[0].Weight != 1 {
		t.Errorf("default weight = %d, want 1", cfg.Tasks[0].Weight)
	}
	if cfg.Tasks[0].Requests[0].Method != "GET" {
		t.Errorf("default method = %q, want GET", cfg.Tasks[0].Requests[0].Method)
	}
}

func TestParse_JSON(t *testing.T) {
	data := `{
		"host": "https://api.example.com",
		"users": 2,
		"spawnRate": 0.5,
		"duration": "1m30s",
		"timeout": "2s",
		"wait": {"type": "constant", "duration": "250ms"},
		"tasks": [
			{"name": "create", "weight": 2, "requests": [
				{"method": "post", "path": "/v1/movies", "body": {"title": "Moana"}}
			]}
		]
	}`

	cfg, err := Parse([]byte(data), "run.json")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Duration.Std() != 90*time.Second {
		t.Errorf("Duration = %s, want 1m30s", cfg.Duration)
	}
	if cfg.Timeout.Std() != 2*time.Second {
		t.Errorf("Timeout = %s, want 2s", cfg.Timeout)
	}
	if cfg.Wait.Duration.Std() != 250*time.Millisecond {
		t.Errorf("Wait.Duration = %s", cfg.Wait.Duration)
	}
	if got := cfg.Tasks[0].Requests[0].Method; got != "POST" {
		t.Errorf("method = %q, want POST", got)
	}
}

func TestParse_SchemaErrors(t *testing.T) {
	data := `
host: http://localhost
users: -1
tasks:
  - name: t
    weight: 0
    requests:
      - path: /x
        method: FETCH
        surprise: true
`
	_, err := Parse([]byte(data), "bad.yaml")
	if err == nil {
		t.Fatal("expected error")
	}

	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T: %v", err, err)
	}

	msg := err.Error()
	for _, field := range []string{"users", "tasks[0].weight", "tasks[0].requests[0].method", "tasks[0].requests[0]"} {
		if !strings.Contains(msg, "'"+field+"'") {
			t.Errorf("error does not mention field %s:\n%s", field, msg)
		}
	}
	if !swarm.IsConfigurationError(err) {
		t.Error("validation errors should unwrap to a ConfigurationError")
	}
}

func TestParse_SemanticErrors(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{
			name: "spawn rate required",
			data: `
host: http://localhost
users: 3
tasks: [{name: a, requests: [{path: /a}]}]
`,
			field: "spawnRate",
		},
		{
			name: "duplicate task",
			data: `
host: http://localhost
tasks:
  - {name: a, requests: [{path: /a}]}
  - {name: a, requests: [{path: /b}]}
`,
			field: "tasks[1].name",
		},
		{
			name: "relative path",
			data: `
host: http://localhost
tasks: [{name: a, requests: [{path: a}]}]
`,
			field: "tasks[0].requests[0].path",
		},
		{
			name: "empty json expectation",
			data: `
host: http://localhost
tasks: [{name: a, requests: [{path: /a, expect: {json: [{path: $.x}]}}]}]
`,
			field: "tasks[0].requests[0].expect.json[0]",
		},
		{
			name: "between without bounds",
			data: `
host: http://localhost
wait: {type: between}
tasks: [{name: a, requests: [{path: /a}]}]
`,
			field: "wait.max",
		},
		{
			name: "constant without duration",
			data: `
host: http://localhost
wait: {type: constant}
tasks: [{name: a, requests: [{path: /a}]}]
`,
			field: "wait.duration",
		},
		{
			name: "pacing without duration",
			data: `
host: http://localhost
wait: {type: pacing}
tasks: [{name: a, requests: [{path: /a}]}]
`,
			field: "wait.duration",
		},
		{
			name: "bad threshold",
			data: `
host: http://localhost
thresholds: {latency: ["p95 < soon"]}
tasks: [{name: a, requests: [{path: /a}]}]
`,
			field: "thresholds",
		},
		{
			name: "bad host",
			data: `
host: localhost:4000
tasks: [{name: a, requests: [{path: /a}]}]
`,
			field: "host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "run.yaml")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err.Error(), tt.field)
			}
		})
	}
}

func TestParse_InvalidSyntax(t *testing.T) {
	if _, err := Parse([]byte("host: [unclosed"), "run.yaml"); err == nil {
		t.Error("expected YAML syntax error")
	}
	if _, err := Parse([]byte("{"), "run.json"); err == nil {
		t.Error("expected JSON syntax error")
	}
	if _, err := Parse(nil, "run.yaml"); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "examples", "movies.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(cfg.Tasks))
	}
	if cfg.Thresholds.Empty() {
		t.Error("expected thresholds")
	}
	if cfg.Wait.Min.Std() != time.Second || cfg.Wait.Max.Std() != 3*time.Second {
		t.Errorf("wait = %s..%s", cfg.Wait.Min, cfg.Wait.Max)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestMarshal(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML), "run.yaml")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Timeout = Duration(1500 * time.Millisecond)

	out, err := Marshal(cfg, "yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "timeout: 1.5s") {
		t.Errorf("YAML output missing timeout:\n%s", out)
	}

	path := filepath.Join(t.TempDir(), "copy.yaml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("re-loading marshaled config failed: %v", err)
	}

	out, err = Marshal(cfg, "JSON")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"timeout": "1.5s"`) {
		t.Errorf("JSON output missing timeout:\n%s", out)
	}
}

func TestPointerToField(t *testing.T) {
	tests := map[string]string{
		"":                           "",
		"/":                          "",
		"/users":                     "users",
		"/tasks/0/requests/1/method": "tasks[0].requests[1].method",
		"/headers/a~1b":              "headers.a/b",
	}
	for in, want := range tests {
		if got := pointerToField(in); got != want {
			t.Errorf("pointerToField(%q) = %q, want %q", in, got, want)
		}
	}
}
