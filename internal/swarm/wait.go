package swarm

import (
	"fmt"
	"math/rand"
	"time"
)

// WaitFunc returns how long a user pauses after an iteration that took
// elapsed.
type WaitFunc func(rng *rand.Rand, elapsed time.Duration) time.Duration

// NoWait starts the next iteration immediately.
func NoWait() WaitFunc {
	return func(*rand.Rand, time.Duration) time.Duration { return 0 }
}

// Constant waits d after every iteration.
func Constant(d time.Duration) WaitFunc {
	return func(*rand.Rand, time.Duration) time.Duration { return d }
}

// Between waits a uniformly random duration in [min, max].
func Between(min, max time.Duration) WaitFunc {
	if max < min {
		min, max = max, min
	}
	return func(rng *rand.Rand, _ time.Duration) time.Duration {
		diff := max - min
		if diff <= 0 {
			return min
		}
		return min + time.Duration(rng.Int63n(int64(diff)+1))
	}
}

// ConstantPacing starts iterations every period, whatever they take. An
// iteration longer than period is followed by no wait at all.
func ConstantPacing(period time.Duration) WaitFunc {
	return func(_ *rand.Rand, elapsed time.Duration) time.Duration {
		if elapsed >= period {
			return 0
		}
		return period - elapsed
	}
}

// WaitType identifies a wait strategy in configuration.
type WaitType string

const (
	WaitNone     WaitType = "none"
	WaitConstant WaitType = "constant"
	WaitBetween  WaitType = "between"
	WaitPacing   WaitType = "pacing"
)

// WaitConfig is the declarative form of a WaitFunc.
type WaitConfig struct {
	// Type of wait: "none", "constant", "between", "pacing"
	Type WaitType `json:"type" yaml:"type"`

	// Duration for constant waits and pacing
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min and Max for uniform random waits
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// Validate checks the wait configuration.
func (w WaitConfig) Validate() error {
	switch w.Type {
	case "", WaitNone:
	case WaitConstant, WaitPacing:
		if w.Duration <= 0 {
			return configErrorf("wait.duration", "must be > 0 for %s waits", w.Type)
		}
	case WaitBetween:
		if w.Min < 0 {
			return configErrorf("wait.min", "must be >= 0")
		}
		if w.Max <= 0 {
			return configErrorf("wait.max", "must be > 0 for between waits")
		}
		if w.Max < w.Min {
			return configErrorf("wait.max", "must be >= min (%s)", w.Min)
		}
	default:
		return configErrorf("wait.type", "unknown wait type %q", w.Type)
	}
	return nil
}

// Func returns the WaitFunc described by w.
func (w WaitConfig) Func() WaitFunc {
	switch w.Type {
	case WaitConstant:
		return Constant(w.Duration)
	case WaitBetween:
		return Between(w.Min, w.Max)
	case WaitPacing:
		return ConstantPacing(w.Duration)
	default:
		return NoWait()
	}
}

func (w WaitConfig) String() string {
	switch w.Type {
	case WaitConstant:
		return fmt.Sprintf("constant %s", w.Duration)
	case WaitBetween:
		return fmt.Sprintf("between %s and %s", w.Min, w.Max)
	case WaitPacing:
		return fmt.Sprintf("pacing %s", w.Duration)
	default:
		return "none"
	}
}
