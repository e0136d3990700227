// Package config loads run files: YAML or JSON documents describing the
// target host, the user population and the weighted tasks the users run.
package config

import (
	"time"

	"github.com/wesleyorama2/hive/internal/swarm/engine"
)

// Config is the root of a run file.
type Config struct {
	// Name identifies the run in reports
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description is free text shown by `hive validate`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Host is the base URL task paths are resolved against
	Host string `json:"host" yaml:"host"`

	// Users is the target number of concurrent virtual users
	Users int `json:"users" yaml:"users"`

	// SpawnRate is users started per second while ramping
	SpawnRate float64 `json:"spawnRate" yaml:"spawnRate"`

	// Duration of the run (empty: until interrupted)
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// MaxRequests ends the run after this many requests
	MaxRequests int64 `json:"maxRequests,omitempty" yaml:"maxRequests,omitempty"`

	GracefulStop   Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
	Timeout        Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ReportInterval Duration `json:"reportInterval,omitempty" yaml:"reportInterval,omitempty"`

	// Headers are sent with every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Variables are substituted for {{name}} in paths, params, headers and
	// string bodies
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	Wait WaitConfig   `json:"wait,omitempty" yaml:"wait,omitempty"`
	HTTP HTTPSettings `json:"http,omitempty" yaml:"http,omitempty"`

	Thresholds *engine.Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	Tasks []TaskConfig `json:"tasks" yaml:"tasks"`
}

// WaitConfig is the pause between a user's tasks.
type WaitConfig struct {
	// Type: none, constant, between or pacing
	Type     string   `json:"type,omitempty" yaml:"type,omitempty"`
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Min      Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max      Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// HTTPSettings tunes the shared HTTP transport.
type HTTPSettings struct {
	MaxIdleConnsPerHost int   `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	MaxConnsPerHost     int   `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`
	DisableKeepAlives   bool  `json:"disableKeepAlives,omitempty" yaml:"disableKeepAlives,omitempty"`
	InsecureSkipVerify  bool  `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
	MaxBodyBytes        int64 `json:"maxBodyBytes,omitempty" yaml:"maxBodyBytes,omitempty"`

	// FollowRedirects defaults to true
	FollowRedirects *bool `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty"`
}

// TaskConfig is a named, weighted sequence of requests.
type TaskConfig struct {
	Name string `json:"name" yaml:"name"`

	// Weight is the relative pick frequency (default 1)
	Weight int `json:"weight,omitempty" yaml:"weight,omitempty"`

	// Requests run in order; a failed request ends the sequence
	Requests []RequestConfig `json:"requests" yaml:"requests"`
}

// RequestConfig is one request of a task.
type RequestConfig struct {
	// Name is the stats key (default: the path without query string)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method defaults to GET
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	Path    string            `json:"path" yaml:"path"`
	Params  map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is sent verbatim when it is a string, JSON-encoded otherwise
	Body interface{} `json:"body,omitempty" yaml:"body,omitempty"`

	Timeout Duration      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Expect  *ExpectConfig `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// ExpectConfig decides whether a response counts as a success.
type ExpectConfig struct {
	// Status lists accepted status codes (default: any 2xx or 3xx)
	Status []int `json:"status,omitempty" yaml:"status,omitempty"`

	JSON []JSONExpect `json:"json,omitempty" yaml:"json,omitempty"`
}

// JSONExpect checks one JSONPath of the response body.
type JSONExpect struct {
	Path   string      `json:"path" yaml:"path"`
	Equals interface{} `json:"equals,omitempty" yaml:"equals,omitempty"`
	Exists *bool       `json:"exists,omitempty" yaml:"exists,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
