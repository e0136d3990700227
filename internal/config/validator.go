package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wesleyorama2/hive/internal/swarm"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes every error as a *swarm.ConfigurationError so callers can
// treat file problems like any other configuration failure.
func (e *ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		errs = append(errs, &swarm.ConfigurationError{Field: err.Field, Message: err.Message})
	}
	return errs
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks what the schema cannot: cross-field constraints, unique
// task names and threshold expressions. Call ApplyDefaults first.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if err := c.ToRunConfig().Validate(); err != nil {
		var cfgErr *swarm.ConfigurationError
		if errors.As(err, &cfgErr) {
			errs.Add(cfgErr.Field, cfgErr.Message)
		} else {
			errs.Add("", err.Error())
		}
	}

	if len(c.Tasks) == 0 {
		errs.Add("tasks", "at least one task is required")
	}
	seen := make(map[string]bool, len(c.Tasks))
	for i := range c.Tasks {
		prefix := fmt.Sprintf("tasks[%d]", i)
		task := &c.Tasks[i]
		if seen[task.Name] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate task name %q", task.Name))
		}
		seen[task.Name] = true
		validateTask(prefix, task, errs)
	}

	if err := c.Thresholds.Validate(); err != nil {
		errs.Add("thresholds", err.Error())
	}

	if c.HTTP.MaxConnsPerHost < 0 {
		errs.Add("http.maxConnsPerHost", "cannot be negative")
	}
	if c.HTTP.MaxIdleConnsPerHost < 0 {
		errs.Add("http.maxIdleConnsPerHost", "cannot be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateTask validates a single task configuration.
func validateTask(prefix string, task *TaskConfig, errs *ValidationErrors) {
	if task.Name == "" {
		errs.Add(prefix+".name", "name is required")
	}
	if task.Weight < 1 {
		errs.Add(prefix+".weight", fmt.Sprintf("must be >= 1, got %d", task.Weight))
	}
	if len(task.Requests) == 0 {
		errs.Add(prefix+".requests", "at least one request is required")
	}
	for j := range task.Requests {
		validateRequest(fmt.Sprintf("%s.requests[%d]", prefix, j), &task.Requests[j], errs)
	}
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// validateRequest validates a single request configuration.
func validateRequest(prefix string, req *RequestConfig, errs *ValidationErrors) {
	if !validMethods[req.Method] {
		errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", req.Method))
	}
	if req.Path == "" {
		errs.Add(prefix+".path", "path is required")
	} else if !strings.HasPrefix(req.Path, "/") && !strings.HasPrefix(req.Path, "{{") {
		errs.Add(prefix+".path", "must start with /")
	}
	if req.Timeout < 0 {
		errs.Add(prefix+".timeout", "cannot be negative")
	}
	if req.Expect == nil {
		return
	}
	for k, code := range req.Expect.Status {
		if code < 100 || code > 599 {
			errs.Add(fmt.Sprintf("%s.expect.status[%d]", prefix, k), fmt.Sprintf("invalid status code %d", code))
		}
	}
	for k, check := range req.Expect.JSON {
		field := fmt.Sprintf("%s.expect.json[%d]", prefix, k)
		if check.Path == "" {
			errs.Add(field+".path", "path is required")
		}
		if check.Equals == nil && check.Exists == nil {
			errs.Add(field, "one of equals or exists is required")
		}
	}
}
