// Package engine runs a load test end to end.
//
// It coordinates:
//   - Run configuration and task registry validation
//   - The user scheduler and its spawn pacing
//   - Stats collection, periodic reporting and the final summary
//   - Stop conditions (duration, request budget, user exhaustion)
//   - Threshold evaluation
//
// Example usage:
//
//	eng, _ := engine.New(cfg, registry, requester, engine.WithLogger(logger))
//	result, err := eng.Run(ctx)
//	fmt.Printf("%d requests, passed: %v\n", result.Stats.Total.Requests, result.Passed)
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/hive/internal/swarm"
	"github.com/wesleyorama2/hive/internal/swarm/metrics"
)

// StopReason says why a run ended.
type StopReason string

const (
	ReasonDuration       StopReason = "duration"
	ReasonMaxRequests    StopReason = "max-requests"
	ReasonUsersExhausted StopReason = "users-exhausted"
	ReasonStopped        StopReason = "stopped"
	ReasonCancelled      StopReason = "cancelled"
	ReasonSchedulerError StopReason = "scheduler-error"
)

// maxRequestsPoll is how often the request budget is checked.
const maxRequestsPoll = 10 * time.Millisecond

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("engine already started")
	// ErrNotStarted is returned by Wait before Start.
	ErrNotStarted = errors.New("engine not started")
)

// Reporter receives live snapshots and the final result.
//
// Report is called from the engine's supervisor goroutine every
// ReportInterval; Summary once after the run has stopped.
type Reporter interface {
	Report(snap *metrics.Snapshot)
	Summary(res *Result)
}

// Result contains the outcome of a run.
type Result struct {
	RunID     string        `json:"runId"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`
	Reason    StopReason    `json:"reason"`

	// Final, frozen stats
	Stats  *metrics.Snapshot     `json:"stats"`
	Phases []metrics.PhaseChange `json:"phases,omitempty"`

	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
	Passed     bool              `json:"passed"`

	// Error if the run ended abnormally
	Error        error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithReporter adds a reporter.
func WithReporter(r Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporters = append(e.reporters, r)
		}
	}
}

// WithSeed makes task selection reproducible.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.seed = seed }
}

// WithThresholds sets pass/fail gates for the run.
func WithThresholds(t *Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithSpawner sets a hook run before each user is spawned. Failures are
// retried up to attempts times before the slot is abandoned.
func WithSpawner(spawner swarm.Spawner, attempts int) Option {
	return func(e *Engine) {
		e.spawner = spawner
		e.spawnAttempts = attempts
	}
}

// WithCollectorConfig tunes the stats collector.
func WithCollectorConfig(cfg metrics.CollectorConfig) Option {
	return func(e *Engine) { e.collectorCfg = &cfg }
}

// Engine runs one load test. It is single use: Start once, Stop any
// number of times.
type Engine struct {
	cfg       swarm.RunConfig
	registry  *swarm.Registry
	requester swarm.Requester

	logger        *zap.Logger
	reporters     []Reporter
	seed          int64
	thresholds    *Thresholds
	spawner       swarm.Spawner
	spawnAttempts int
	collectorCfg  *metrics.CollectorConfig

	collector *metrics.Collector
	scheduler *swarm.Scheduler
	runID     string

	mu       sync.Mutex
	started  bool
	stopReq  chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	result   *Result
	err      error
}

// New creates an engine. Configuration is validated by Start.
func New(cfg swarm.RunConfig, registry *swarm.Registry, requester swarm.Requester, opts ...Option) (*Engine, error) {
	if requester == nil {
		return nil, &swarm.ConfigurationError{Field: "requester", Message: "is required"}
	}

	e := &Engine{
		cfg:       cfg,
		registry:  registry,
		requester: requester,
		logger:    zap.NewNop(),
		stopReq:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.collectorCfg != nil {
		e.collector = metrics.NewCollectorWithConfig(*e.collectorCfg)
	} else {
		e.collector = metrics.NewCollector()
	}
	return e, nil
}

// Start validates the configuration and begins the run. It returns once
// spawning has started; use Wait for the result.
//
// Cancelling ctx ends the run immediately, aborting in-flight requests.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	cfg, tasks, err := e.prepare()
	if err != nil {
		e.abort(err)
		return err
	}

	runID := uuid.NewString()
	e.logger = e.logger.With(zap.String("run", runID))

	start := time.Now()
	e.collector.Begin(start)

	scheduler := swarm.NewScheduler(swarm.SchedulerConfig{
		SpawnRate:        cfg.SpawnRate,
		MaxSpawnAttempts: e.spawnAttempts,
		Spawner:          e.spawner,
		OnStateChange: func(_, to swarm.State) {
			e.collector.SetPhase(phaseOf(to))
		},
	}, swarm.UserConfig{
		Tasks:     tasks,
		Wait:      cfg.Wait.Func(),
		Requester: e.requester,
		Stats:     e.collector,
		Timeout:   cfg.Timeout,
		Headers:   cfg.Headers,
		Logger:    e.logger,
		Seed:      e.seed,
	})

	e.mu.Lock()
	e.runID = runID
	e.scheduler = scheduler
	e.mu.Unlock()

	e.logger.Info("starting run",
		zap.String("host", cfg.Host),
		zap.Int("users", cfg.Users),
		zap.Float64("spawnRate", cfg.SpawnRate),
		zap.Duration("duration", cfg.Duration),
		zap.Int64("maxRequests", cfg.MaxRequests),
		zap.Stringer("wait", cfg.Wait))

	if err := scheduler.Start(ctx, cfg.Users); err != nil {
		e.abort(err)
		return err
	}

	go e.supervise(ctx, cfg, start)
	return nil
}

func (e *Engine) prepare() (swarm.RunConfig, *swarm.TaskSet, error) {
	if err := e.cfg.Validate(); err != nil {
		return swarm.RunConfig{}, nil, err
	}
	if e.registry == nil {
		return swarm.RunConfig{}, nil, &swarm.ConfigurationError{Field: "tasks", Message: "task registry is empty"}
	}
	tasks, err := e.registry.Build()
	if err != nil {
		return swarm.RunConfig{}, nil, err
	}
	if err := e.thresholds.Validate(); err != nil {
		return swarm.RunConfig{}, nil, &swarm.ConfigurationError{Field: "thresholds", Message: err.Error()}
	}
	return e.cfg.WithDefaults(), tasks, nil
}

// abort ends a run that never started.
func (e *Engine) abort(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	close(e.done)
}

func (e *Engine) supervise(ctx context.Context, cfg swarm.RunConfig, start time.Time) {
	var deadline <-chan time.Time
	if cfg.Duration > 0 {
		timer := time.NewTimer(cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	var budget <-chan time.Time
	if cfg.MaxRequests > 0 {
		ticker := time.NewTicker(maxRequestsPoll)
		defer ticker.Stop()
		budget = ticker.C
	}

	report := time.NewTicker(cfg.ReportInterval)
	defer report.Stop()

	var (
		reason StopReason
		err    error
	)

loop:
	for {
		select {
		case <-deadline:
			reason = ReasonDuration
			break loop
		case <-budget:
			if e.collector.TotalRequests() >= cfg.MaxRequests {
				reason = ReasonMaxRequests
				break loop
			}
		case <-e.scheduler.Exhausted():
			reason = ReasonUsersExhausted
			select {
			case err = <-e.scheduler.Err():
				reason = ReasonSchedulerError
			default:
			}
			break loop
		case err = <-e.scheduler.Err():
			reason = ReasonSchedulerError
			break loop
		case <-ctx.Done():
			reason = ReasonCancelled
			err = ctx.Err()
			break loop
		case <-e.stopReq:
			reason = ReasonStopped
			break loop
		case <-report.C:
			snap := e.collector.Snapshot()
			for _, r := range e.reporters {
				r.Report(snap)
			}
		}
	}

	e.finish(cfg, start, reason, err)
}

func (e *Engine) finish(cfg swarm.RunConfig, start time.Time, reason StopReason, runErr error) {
	e.logger.Info("stopping run", zap.String("reason", string(reason)))

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulStop)
	if err := e.scheduler.Stop(stopCtx); err != nil {
		e.logger.Warn("graceful stop timed out, in-flight requests were cancelled",
			zap.Duration("gracefulStop", cfg.GracefulStop))
	}
	cancel()

	end := time.Now()
	e.collector.SetActiveUsers(0)
	e.collector.Freeze(end)
	snap := e.collector.Snapshot()

	result := &Result{
		RunID:     e.RunID(),
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Reason:    reason,
		Stats:     snap,
		Phases:    e.collector.PhaseHistory(),
		Error:     runErr,
	}
	if runErr != nil {
		result.ErrorMessage = runErr.Error()
	}

	result.Thresholds = e.thresholds.Evaluate(snap)
	result.Passed = runErr == nil || errors.Is(runErr, context.Canceled)
	for _, tr := range result.Thresholds {
		if !tr.Passed {
			result.Passed = false
			break
		}
	}

	e.logger.Info("run finished",
		zap.Int64("requests", snap.Total.Requests),
		zap.Float64("failureRate", snap.FailureRate),
		zap.Duration("elapsed", result.Duration),
		zap.Bool("passed", result.Passed))

	e.mu.Lock()
	e.result = result
	e.err = runErr
	e.mu.Unlock()

	for _, r := range e.reporters {
		r.Summary(result)
	}
	close(e.done)
}

// Stop ends the run: users are asked to stop after their current task and
// are given GracefulStop to finish. Stop blocks until the run has stopped or
// ctx expires. It is safe to call more than once.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return nil
	}

	e.stopOnce.Do(func() { close(e.stopReq) })

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the run ends and returns its result. The error is the
// configuration error from Start, the unrecoverable scheduler error, or the
// parent context's error.
func (e *Engine) Wait() (*Result, error) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}

	<-e.done

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.err
}

// Done is closed when the run has ended.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run starts the engine and waits for it to finish.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	return e.Wait()
}

// CurrentStats returns a snapshot of the run so far. Once the run has
// stopped the snapshot no longer changes. Every call returns a new copy.
func (e *Engine) CurrentStats() *metrics.Snapshot {
	e.mu.Lock()
	result := e.result
	e.mu.Unlock()

	if result != nil {
		return result.Stats.Clone()
	}
	return e.collector.Snapshot()
}

// Scale changes the target user count and spawn rate of a running test.
func (e *Engine) Scale(users int, spawnRate float64) error {
	e.mu.Lock()
	scheduler := e.scheduler
	e.mu.Unlock()
	if scheduler == nil {
		return ErrNotStarted
	}
	if users < 0 {
		return &swarm.ConfigurationError{Field: "users", Message: fmt.Sprintf("must be >= 0, got %d", users)}
	}
	if users > 0 && spawnRate <= 0 {
		return &swarm.ConfigurationError{Field: "spawnRate", Message: "must be > 0 when users > 0"}
	}
	scheduler.SetSpawnRate(spawnRate)
	return scheduler.SetTarget(users)
}

// SpawnRate returns the current spawn rate in users per second, 0 before
// Start or when spawning is unlimited.
func (e *Engine) SpawnRate() float64 {
	e.mu.Lock()
	scheduler := e.scheduler
	e.mu.Unlock()
	if scheduler == nil {
		return 0
	}
	return scheduler.SpawnRate()
}

// RunID returns the run's unique identifier, empty before Start.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// State returns the scheduler state.
func (e *Engine) State() swarm.State {
	e.mu.Lock()
	scheduler := e.scheduler
	e.mu.Unlock()
	if scheduler == nil {
		return swarm.StateIdle
	}
	return scheduler.State()
}

// Collector returns the engine's stats collector.
func (e *Engine) Collector() *metrics.Collector {
	return e.collector
}

func phaseOf(s swarm.State) metrics.Phase {
	switch s {
	case swarm.StateRampingUp:
		return metrics.PhaseRampUp
	case swarm.StateSteady:
		return metrics.PhaseSteady
	case swarm.StateRampingDown:
		return metrics.PhaseRampDown
	case swarm.StateStopped:
		return metrics.PhaseStopped
	default:
		return metrics.PhaseIdle
	}
}
