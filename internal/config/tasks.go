package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	hivehttp "github.com/wesleyorama2/hive/internal/http"
	"github.com/wesleyorama2/hive/internal/swarm"
	"github.com/wesleyorama2/hive/pkg/jsonpath"
)

// ToRunConfig maps the file onto the engine's run configuration.
func (c *Config) ToRunConfig() swarm.RunConfig {
	return swarm.RunConfig{
		Host:         c.Host,
		Users:        c.Users,
		SpawnRate:    c.SpawnRate,
		Duration:     c.Duration.Std(),
		MaxRequests:  c.MaxRequests,
		GracefulStop: c.GracefulStop.Std(),
		Timeout:      c.Timeout.Std(),
		Headers:      c.resolveMap(c.Headers),
		Wait: swarm.WaitConfig{
			Type:     swarm.WaitType(c.Wait.Type),
			Duration: c.Wait.Duration.Std(),
			Min:      c.Wait.Min.Std(),
			Max:      c.Wait.Max.Std(),
		},
		ReportInterval: c.ReportInterval.Std(),
	}
}

// HTTPConfig returns the transport settings, starting from
// hivehttp.DefaultConfig.
func (c *Config) HTTPConfig() hivehttp.Config {
	cfg := hivehttp.DefaultConfig()
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout.Std()
	}
	if c.HTTP.MaxIdleConnsPerHost > 0 {
		cfg.MaxIdleConnsPerHost = c.HTTP.MaxIdleConnsPerHost
	}
	if c.HTTP.MaxConnsPerHost > 0 {
		cfg.MaxConnsPerHost = c.HTTP.MaxConnsPerHost
	}
	if c.HTTP.MaxBodyBytes > 0 {
		cfg.MaxBodyBytes = c.HTTP.MaxBodyBytes
	}
	if c.HTTP.FollowRedirects != nil {
		cfg.FollowRedirects = *c.HTTP.FollowRedirects
	}
	cfg.DisableKeepAlives = c.HTTP.DisableKeepAlives
	cfg.InsecureSkipVerify = c.HTTP.InsecureSkipVerify
	return cfg
}

// BuildRegistry registers one task per TaskConfig. Each task runs its
// requests in order and stops at the first failed request; the failure is
// already recorded in the stats, so the task itself returns nil.
func (c *Config) BuildRegistry() (*swarm.Registry, error) {
	registry := swarm.NewRegistry()
	for i := range c.Tasks {
		task := &c.Tasks[i]
		steps := make([]step, 0, len(task.Requests))
		for j := range task.Requests {
			s, err := c.compileStep(&task.Requests[j])
			if err != nil {
				return nil, &swarm.ConfigurationError{
					Field:   fmt.Sprintf("tasks[%d].requests[%d]", i, j),
					Message: err.Error(),
				}
			}
			steps = append(steps, s)
		}
		if err := registry.Register(task.Name, task.Weight, sequence(steps)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

type step struct {
	method string
	path   string
	opts   swarm.RequestOptions
}

func sequence(steps []step) swarm.TaskFunc {
	return func(ctx context.Context, u *swarm.VirtualUser) error {
		for i := range steps {
			s := &steps[i]
			opts := s.opts
			if _, err := u.Client().Request(ctx, s.method, s.path, &opts); err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
		}
		return nil
	}
}

func (c *Config) compileStep(req *RequestConfig) (step, error) {
	s := step{
		method: req.Method,
		path:   c.resolve(req.Path),
		opts: swarm.RequestOptions{
			Name:    req.Name,
			Headers: c.resolveMap(req.Headers),
			Timeout: req.Timeout.Std(),
			Check:   buildCheck(req.Expect),
		},
	}

	if len(req.Params) > 0 {
		s.opts.Params = url.Values{}
		for k, v := range req.Params {
			s.opts.Params.Set(k, c.resolve(v))
		}
	}

	switch body := req.Body.(type) {
	case nil:
	case string:
		s.opts.Body = []byte(c.resolve(body))
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return step{}, fmt.Errorf("body: %w", err)
		}
		s.opts.Body = data
	}
	return s, nil
}

func buildCheck(expect *ExpectConfig) swarm.Check {
	if expect == nil {
		return nil
	}

	checks := []swarm.Check{swarm.DefaultCheck}
	if len(expect.Status) > 0 {
		checks[0] = swarm.ExpectStatus(expect.Status...)
	}
	for _, e := range expect.JSON {
		checks = append(checks, jsonCheck(e))
	}
	return swarm.AllChecks(checks...)
}

func jsonCheck(e JSONExpect) swarm.Check {
	return func(res *swarm.Result) error {
		if e.Exists != nil {
			if found := jsonpath.Exists(res.Body, e.Path); found != *e.Exists {
				if found {
					return fmt.Errorf("%s: unexpected value", e.Path)
				}
				return fmt.Errorf("%s: not found", e.Path)
			}
		}
		if e.Equals != nil {
			return jsonpath.Equals(res.Body, e.Path, fmt.Sprint(e.Equals))
		}
		return nil
	}
}

// resolve substitutes {{name}} placeholders from Variables and {{host}}.
// Unresolved placeholders are left as-is.
func (c *Config) resolve(input string) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	result := input
	for key, value := range c.Variables {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return strings.ReplaceAll(result, "{{host}}", c.Host)
}

func (c *Config) resolveMap(input map[string]string) map[string]string {
	if len(input) == 0 {
		return nil
	}
	result := make(map[string]string, len(input))
	for k, v := range input {
		result[k] = c.resolve(v)
	}
	return result
}
