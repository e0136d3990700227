package swarm

import (
	"net/url"
	"time"
)

const (
	// DefaultGracefulStop bounds how long a stop waits for in-flight tasks.
	DefaultGracefulStop = 30 * time.Second
	// DefaultTimeout is the per-request timeout when none is configured.
	DefaultTimeout = 30 * time.Second
	// DefaultReportInterval is how often live stats are pushed to reporters.
	DefaultReportInterval = 2 * time.Second
)

// RunConfig describes one load run. It must not change once the run starts.
type RunConfig struct {
	// Host is the base URL requests are sent to (e.g. http://localhost:4000)
	Host string `json:"host" yaml:"host"`

	// Users is the target number of concurrent virtual users
	Users int `json:"users" yaml:"users"`

	// SpawnRate is the number of users started per second
	SpawnRate float64 `json:"spawnRate" yaml:"spawnRate"`

	// Duration of the run (0: until stopped)
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// MaxRequests ends the run after this many requests (0: unlimited)
	MaxRequests int64 `json:"maxRequests,omitempty" yaml:"maxRequests,omitempty"`

	// GracefulStop bounds the drain of in-flight tasks on stop
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Timeout is the default per-request timeout
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Headers are sent with every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Wait is the pause between a user's tasks
	Wait WaitConfig `json:"wait,omitempty" yaml:"wait,omitempty"`

	// ReportInterval is how often live stats are reported
	ReportInterval time.Duration `json:"reportInterval,omitempty" yaml:"reportInterval,omitempty"`
}

// WithDefaults returns a copy of c with unset durations filled in.
func (c RunConfig) WithDefaults() RunConfig {
	if c.GracefulStop <= 0 {
		c.GracefulStop = DefaultGracefulStop
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = DefaultReportInterval
	}
	return c
}

// Validate checks the run configuration. Every failure is a
// *ConfigurationError.
func (c RunConfig) Validate() error {
	if c.Users < 0 {
		return configErrorf("users", "must be >= 0, got %d", c.Users)
	}
	if c.Users > 0 && c.SpawnRate <= 0 {
		return configErrorf("spawnRate", "must be > 0 when users > 0, got %g", c.SpawnRate)
	}
	if c.Duration < 0 {
		return configErrorf("duration", "must be >= 0, got %s", c.Duration)
	}
	if c.MaxRequests < 0 {
		return configErrorf("maxRequests", "must be >= 0, got %d", c.MaxRequests)
	}
	if c.GracefulStop < 0 {
		return configErrorf("gracefulStop", "must be >= 0, got %s", c.GracefulStop)
	}
	if c.Timeout < 0 {
		return configErrorf("timeout", "must be >= 0, got %s", c.Timeout)
	}
	if c.Host == "" {
		return configErrorf("host", "is required")
	}
	u, err := url.Parse(c.Host)
	if err != nil {
		return configErrorf("host", "invalid URL: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return configErrorf("host", "must be an absolute http(s) URL, got %q", c.Host)
	}
	return c.Wait.Validate()
}
