package swarm_test

import (
	"testing"
	"time"

	"github.com/wesleyorama2/hive/internal/swarm"
)

func validRunConfig() swarm.RunConfig {
	return swarm.RunConfig{
		Host:      "http://localhost:4000",
		Users:     10,
		SpawnRate: 2,
		Duration:  time.Minute,
	}
}

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*swarm.RunConfig)
		field   string
		wantErr bool
	}{
		{"valid", func(*swarm.RunConfig) {}, "", false},
		{"zero users without rate", func(c *swarm.RunConfig) { c.Users = 0; c.SpawnRate = 0 }, "", false},
		{"negative users", func(c *swarm.RunConfig) { c.Users = -1 }, "users", true},
		{"zero spawn rate", func(c *swarm.RunConfig) { c.SpawnRate = 0 }, "spawnRate", true},
		{"negative duration", func(c *swarm.RunConfig) { c.Duration = -time.Second }, "duration", true},
		{"negative max requests", func(c *swarm.RunConfig) { c.MaxRequests = -1 }, "maxRequests", true},
		{"missing host", func(c *swarm.RunConfig) { c.Host = "" }, "host", true},
		{"relative host", func(c *swarm.RunConfig) { c.Host = "localhost:4000" }, "host", true},
		{"ftp host", func(c *swarm.RunConfig) { c.Host = "ftp://example.com" }, "host", true},
		{"bad wait", func(c *swarm.RunConfig) { c.Wait = swarm.WaitConfig{Type: "x"} }, "wait.type", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validRunConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			cfgErr, ok := err.(*swarm.ConfigurationError)
			if !ok {
				t.Fatalf("Validate() error = %T, want *ConfigurationError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestRunConfig_WithDefaults(t *testing.T) {
	cfg := validRunConfig().WithDefaults()

	if cfg.GracefulStop != swarm.DefaultGracefulStop {
		t.Errorf("GracefulStop = %v, want %v", cfg.GracefulStop, swarm.DefaultGracefulStop)
	}
	if cfg.Timeout != swarm.DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, swarm.DefaultTimeout)
	}
	if cfg.ReportInterval != swarm.DefaultReportInterval {
		t.Errorf("ReportInterval = %v, want %v", cfg.ReportInterval, swarm.DefaultReportInterval)
	}

	custom := validRunConfig()
	custom.Timeout = time.Second
	if got := custom.WithDefaults().Timeout; got != time.Second {
		t.Errorf("WithDefaults overrode Timeout: %v", got)
	}
}
