package metrics

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Collector ingests RequestOutcome events from many virtual users at once.
//
// Outcomes are spread round-robin over independent shards, each guarded by
// its own mutex, so concurrent producers rarely contend. Snapshot merges the
// shards into a fresh Aggregate; a producer only waits while the shard it
// hits is being copied.
//
// # Thread Safety
//
// Collector is safe for concurrent use. Counters that are read often
// (totals, active users, abandoned users) are atomics.
type Collector struct {
	cfg    CollectorConfig
	shards []*shard
	next   atomic.Uint64

	totalRequests atomic.Int64
	activeUsers   atomic.Int32
	abandoned     atomic.Int64
	taskErrors    atomic.Int64

	phaseMu      sync.RWMutex
	phase        Phase
	phaseHistory []PhaseChange

	clockMu sync.RWMutex
	start   time.Time
	end     time.Time
}

type shard struct {
	mu  sync.Mutex
	agg *Aggregate
	// keep neighbouring shard locks off the same cache line
	_ [40]byte
}

// CollectorConfig contains configuration for the collector.
type CollectorConfig struct {
	// Shards is the number of independent aggregates (default: 4 x GOMAXPROCS)
	Shards int

	// Histogram bounds the latency histograms
	Histogram HistogramConfig
}

// DefaultCollectorConfig returns the default configuration.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Shards:    4 * runtime.GOMAXPROCS(0),
		Histogram: DefaultHistogramConfig(),
	}
}

// NewCollector creates a collector with default configuration.
func NewCollector() *Collector {
	return NewCollectorWithConfig(DefaultCollectorConfig())
}

// NewCollectorWithConfig creates a collector with custom configuration.
func NewCollectorWithConfig(cfg CollectorConfig) *Collector {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	if cfg.Histogram.Max == 0 {
		cfg.Histogram = DefaultHistogramConfig()
	}

	c := &Collector{
		cfg:    cfg,
		shards: make([]*shard, cfg.Shards),
		phase:  PhaseIdle,
		start:  time.Now(),
	}
	for i := range c.shards {
		c.shards[i] = &shard{agg: NewAggregateWithConfig(cfg.Histogram)}
	}
	return c
}

// Begin marks the start of the measured window.
func (c *Collector) Begin(at time.Time) {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()
	c.start = at
	c.end = time.Time{}
}

// Freeze stops the measured window. Later snapshots report a fixed elapsed
// time; outcomes recorded after Freeze are still counted.
func (c *Collector) Freeze(at time.Time) {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()
	if c.end.IsZero() {
		c.end = at
	}
}

// Frozen reports whether Freeze has been called since the last Begin.
func (c *Collector) Frozen() bool {
	c.clockMu.RLock()
	defer c.clockMu.RUnlock()
	return !c.end.IsZero()
}

func (c *Collector) window() (time.Time, time.Duration) {
	c.clockMu.RLock()
	defer c.clockMu.RUnlock()
	if c.end.IsZero() {
		return c.start, time.Since(c.start)
	}
	return c.start, c.end.Sub(c.start)
}

// Record ingests one outcome.
func (c *Collector) Record(o RequestOutcome) {
	idx := c.next.Add(1) % uint64(len(c.shards))
	s := c.shards[idx]

	s.mu.Lock()
	s.agg.Add(o)
	s.mu.Unlock()

	c.totalRequests.Add(1)
}

// RecordTaskError counts a task action that returned an error of its own
// (not a request failure, which is already an outcome).
func (c *Collector) RecordTaskError() {
	c.taskErrors.Add(1)
}

// RecordAbandonedUser counts a user slot given up after repeated spawn
// failures.
func (c *Collector) RecordAbandonedUser() {
	c.abandoned.Add(1)
}

// TotalRequests returns the number of outcomes recorded so far.
func (c *Collector) TotalRequests() int64 {
	return c.totalRequests.Load()
}

// SetActiveUsers updates the live user count.
func (c *Collector) SetActiveUsers(n int) {
	c.activeUsers.Store(int32(n))
}

// ActiveUsers returns the live user count.
func (c *Collector) ActiveUsers() int {
	return int(c.activeUsers.Load())
}

// SetPhase records a phase transition.
func (c *Collector) SetPhase(phase Phase) {
	c.phaseMu.Lock()
	defer c.phaseMu.Unlock()

	if c.phase == phase {
		return
	}
	c.phase = phase
	c.phaseHistory = append(c.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  c.totalRequests.Load(),
	})
}

// Phase returns the current phase.
func (c *Collector) Phase() Phase {
	c.phaseMu.RLock()
	defer c.phaseMu.RUnlock()
	return c.phase
}

// PhaseHistory returns a copy of the recorded phase transitions.
func (c *Collector) PhaseHistory() []PhaseChange {
	c.phaseMu.RLock()
	defer c.phaseMu.RUnlock()

	out := make([]PhaseChange, len(c.phaseHistory))
	copy(out, c.phaseHistory)
	return out
}

// Aggregate merges every shard into a new Aggregate owned by the caller.
func (c *Collector) Aggregate() *Aggregate {
	merged := NewAggregateWithConfig(c.cfg.Histogram)
	for _, s := range c.shards {
		s.mu.Lock()
		merged.Merge(s.agg)
		s.mu.Unlock()
	}
	return merged
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	agg := c.Aggregate()
	rows, total := agg.Endpoints()
	start, elapsed := c.window()

	snap := &Snapshot{
		Endpoints:      rows,
		Total:          total,
		FailureRate:    total.FailureRate,
		ActiveUsers:    c.ActiveUsers(),
		AbandonedUsers: c.abandoned.Load(),
		TaskErrors:     c.taskErrors.Load(),
		Phase:          c.Phase(),
		Elapsed:        elapsed,
		StartTime:      start,
		Timestamp:      time.Now(),
	}

	if secs := elapsed.Seconds(); secs > 0 {
		snap.RPS = float64(total.Requests) / secs
		snap.Total.RPS = snap.RPS
		for i := range snap.Endpoints {
			snap.Endpoints[i].RPS = float64(snap.Endpoints[i].Requests) / secs
		}
	}
	return snap
}

// Reset resets all metrics to their initial state.
func (c *Collector) Reset() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.agg.Reset()
		s.mu.Unlock()
	}

	c.totalRequests.Store(0)
	c.activeUsers.Store(0)
	c.abandoned.Store(0)
	c.taskErrors.Store(0)

	c.phaseMu.Lock()
	c.phase = PhaseIdle
	c.phaseHistory = nil
	c.phaseMu.Unlock()

	c.Begin(time.Now())
}
