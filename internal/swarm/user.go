package swarm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/hive/internal/swarm/metrics"
)

// UserState represents the lifecycle state of a Virtual User.
type UserState int32

const (
	// UserStateIdle indicates the user exists but has not started its loop.
	UserStateIdle UserState = iota
	// UserStateRunning indicates the user is looping over tasks.
	UserStateRunning
	// UserStateStopping indicates the user has been asked to stop and will
	// exit after its current task.
	UserStateStopping
	// UserStateStopped indicates the user's loop has returned.
	UserStateStopped
)

func (s UserState) String() string {
	switch s {
	case UserStateIdle:
		return "idle"
	case UserStateRunning:
		return "running"
	case UserStateStopping:
		return "stopping"
	case UserStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// UserConfig holds what every spawned user shares.
type UserConfig struct {
	Tasks     *TaskSet
	Wait      WaitFunc
	Requester Requester
	Stats     *metrics.Collector
	// Timeout is the default per-request timeout
	Timeout time.Duration
	// Headers are sent with every request
	Headers map[string]string
	Logger  *zap.Logger
	// Seed makes task selection reproducible; 0 seeds from the clock
	Seed int64
}

// VirtualUser is a single simulated client.
//
// A user owns its random source, its client and its variable scope; nothing
// about it is ambient. Users are created by the Scheduler and run in their
// own goroutine until asked to stop.
type VirtualUser struct {
	// Unique identifier for this user
	ID int

	tasks  *TaskSet
	wait   WaitFunc
	client *Client
	stats  *metrics.Collector
	rng    *rand.Rand
	logger *zap.Logger

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
	doneOnce sync.Once

	iterations atomic.Int64

	mu             sync.Mutex
	currentTask    string
	lastAction     time.Time
	cumulativeWait time.Duration
	exitErr        error

	// Per-user variable scope
	data   map[string]interface{}
	dataMu sync.RWMutex
}

// NewVirtualUser creates a user from cfg. The user does nothing until Run.
func NewVirtualUser(id int, cfg UserConfig) *VirtualUser {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	wait := cfg.Wait
	if wait == nil {
		wait = NoWait()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &VirtualUser{
		ID:     id,
		tasks:  cfg.Tasks,
		wait:   wait,
		client: NewClient(cfg.Requester, cfg.Stats, cfg.Timeout, cfg.Headers),
		stats:  cfg.Stats,
		rng:    rand.New(rand.NewSource(seed + int64(id))),
		logger: logger.With(zap.Int("user", id)),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		data:   make(map[string]interface{}),
	}
}

// Client returns the user's request client.
func (u *VirtualUser) Client() *Client {
	return u.client
}

// Rand returns the user's private random source. Only the user's own
// goroutine may use it.
func (u *VirtualUser) Rand() *rand.Rand {
	return u.rng
}

// State returns the current user state.
func (u *VirtualUser) State() UserState {
	return UserState(u.state.Load())
}

// Iterations returns how many tasks the user has started.
func (u *VirtualUser) Iterations() int64 {
	return u.iterations.Load()
}

// CurrentTask returns the name of the task being run, or the last one run.
func (u *VirtualUser) CurrentTask() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.currentTask
}

// LastAction returns when the user last finished a task.
func (u *VirtualUser) LastAction() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastAction
}

// CumulativeWait returns the total time spent waiting between tasks.
func (u *VirtualUser) CumulativeWait() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cumulativeWait
}

// SelfStopped reports whether the user ended itself with ErrStopUser.
func (u *VirtualUser) SelfStopped() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return errors.Is(u.exitErr, ErrStopUser)
}

// Run loops over tasks until the user is asked to stop, a task returns
// ErrStopUser, or ctx is cancelled.
//
// Stop requests are honoured between tasks and during waits, never in the
// middle of a task: in-flight requests drain. Only ctx cancellation aborts
// them. Request failures and task errors never end the loop.
func (u *VirtualUser) Run(ctx context.Context) {
	if !u.state.CompareAndSwap(int32(UserStateIdle), int32(UserStateRunning)) {
		if u.State() == UserStateStopping {
			u.markStopped()
		}
		return
	}
	defer u.markStopped()

	for {
		if ctx.Err() != nil || u.stopRequested() {
			return
		}

		task := u.tasks.Pick(u.rng)
		start := time.Now()

		u.mu.Lock()
		u.currentTask = task.Name
		u.mu.Unlock()
		u.iterations.Add(1)

		err := u.runTask(ctx, task)

		u.mu.Lock()
		u.lastAction = time.Now()
		u.mu.Unlock()

		switch {
		case errors.Is(err, ErrStopUser):
			u.mu.Lock()
			u.exitErr = err
			u.mu.Unlock()
			u.logger.Debug("user stopped itself", zap.String("task", task.Name))
			return
		case err != nil && ctx.Err() == nil:
			if u.stats != nil {
				u.stats.RecordTaskError()
			}
			u.logger.Debug("task returned error", zap.String("task", task.Name), zap.Error(err))
		}

		if !u.pause(ctx, u.wait(u.rng, time.Since(start))) {
			return
		}
	}
}

// runTask runs one action, turning a panic into a task error.
func (u *VirtualUser) runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Action(ctx, u)
}

// pause waits d or until the user is stopped. It returns false when the loop
// should end.
func (u *VirtualUser) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	began := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()

	defer func() {
		u.mu.Lock()
		u.cumulativeWait += time.Since(began)
		u.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return false
	case <-u.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (u *VirtualUser) stopRequested() bool {
	select {
	case <-u.stopCh:
		return true
	default:
		return false
	}
}

// RequestStop asks the user to exit after its current task. It is safe to
// call more than once and from any goroutine.
func (u *VirtualUser) RequestStop() {
	u.stopOnce.Do(func() {
		u.state.CompareAndSwap(int32(UserStateRunning), int32(UserStateStopping))
		u.state.CompareAndSwap(int32(UserStateIdle), int32(UserStateStopping))
		close(u.stopCh)
	})
}

// Done is closed once the user's loop has returned.
func (u *VirtualUser) Done() <-chan struct{} {
	return u.doneCh
}

// WaitForStop waits for the user to stop with a timeout.
//
// Returns true if the user stopped within the timeout, false otherwise.
func (u *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-u.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (u *VirtualUser) markStopped() {
	u.doneOnce.Do(func() {
		u.state.Store(int32(UserStateStopped))
		close(u.doneCh)
	})
}

// SetData stores a value in the user's variable scope.
func (u *VirtualUser) SetData(key string, value interface{}) {
	u.dataMu.Lock()
	defer u.dataMu.Unlock()
	u.data[key] = value
}

// GetData retrieves a value from the user's variable scope.
func (u *VirtualUser) GetData(key string) (interface{}, bool) {
	u.dataMu.RLock()
	defer u.dataMu.RUnlock()
	val, ok := u.data[key]
	return val, ok
}

// ClearData removes a value from the user's variable scope.
func (u *VirtualUser) ClearData(key string) {
	u.dataMu.Lock()
	defer u.dataMu.Unlock()
	delete(u.data, key)
}
