package swarm

import (
	"errors"
	"fmt"
)

// ErrStopUser may be returned by a task action to end its virtual user. The
// user exits cleanly and its slot is not refilled.
var ErrStopUser = errors.New("stop user")

// ConfigurationError reports an invalid run configuration or task registry.
// It is fatal at start: the run never begins.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error on field '%s': %s", e.Field, e.Message)
	}
	return "configuration error: " + e.Message
}

func configErrorf(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// RequestError describes a request that produced no usable response. It is
// recorded as an outcome and never ends a virtual user.
type RequestError struct {
	Method string
	Path   string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// SchedulerError reports a user slot that could not be spawned.
type SchedulerError struct {
	// Slot is the user ID that was being spawned
	Slot int
	// Attempts made before giving up
	Attempts int
	Err      error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("spawn user %d failed after %d attempt(s): %v", e.Slot, e.Attempts, e.Err)
}

func (e *SchedulerError) Unwrap() error {
	return e.Err
}
