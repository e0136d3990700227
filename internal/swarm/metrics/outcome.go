// Package metrics collects request outcomes from virtual users and turns them
// into point-in-time snapshots.
package metrics

import "time"

// Status classifies the outcome of a single request.
type Status int8

const (
	// StatusSuccess means a response arrived and passed its check.
	StatusSuccess Status = iota
	// StatusFailure means a response arrived but failed its check
	// (unexpected status code, failed body check).
	StatusFailure
	// StatusError means no usable response arrived (timeout, connection
	// refused, request could not be built).
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// RequestOutcome is the immutable record of one request issued by a virtual
// user.
type RequestOutcome struct {
	// Endpoint is the stats key, usually the request path or an explicit name.
	Endpoint   string        `json:"endpoint"`
	Method     string        `json:"method"`
	Start      time.Time     `json:"start"`
	Duration   time.Duration `json:"duration"`
	Status     Status        `json:"status"`
	StatusCode int           `json:"statusCode,omitempty"`
	Bytes      int64         `json:"bytes,omitempty"`
	// Err carries the failure or error detail, empty on success.
	Err string `json:"error,omitempty"`
}

// Phase mirrors the scheduler state for reporting.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseStopped  Phase = "stopped"
)

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}
