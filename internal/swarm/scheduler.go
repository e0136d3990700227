package swarm

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is the scheduler lifecycle state.
type State int32

const (
	// StateIdle indicates the scheduler has not been started.
	StateIdle State = iota
	// StateRampingUp indicates users are being spawned toward the target.
	StateRampingUp
	// StateSteady indicates the live population matches the target.
	StateSteady
	// StateRampingDown indicates users are draining, either because the
	// target dropped or because a stop was requested.
	StateRampingDown
	// StateStopped indicates every user has exited after a stop.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRampingUp:
		return "ramping-up"
	case StateSteady:
		return "steady"
	case StateRampingDown:
		return "ramping-down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrSchedulerStarted is returned by Start on a scheduler that already ran.
var ErrSchedulerStarted = errors.New("scheduler already started")

// ErrSchedulerStopping is returned by SetTarget once Stop has been called.
var ErrSchedulerStopping = errors.New("scheduler is stopping")

// Spawner runs before a user is created. Returning an error marks the spawn
// as failed (for example, a resource limit was hit); it is retried with
// backoff.
type Spawner func(ctx context.Context, id int) error

// SchedulerConfig contains scheduler configuration.
type SchedulerConfig struct {
	// SpawnRate is the number of users started per second (<= 0: no limit)
	SpawnRate float64

	// MaxSpawnAttempts bounds retries of a failing spawn before the slot is
	// abandoned (default: 3)
	MaxSpawnAttempts int

	// SpawnBackoff is the first retry delay; later delays grow
	// exponentially (default: 100ms)
	SpawnBackoff time.Duration

	// Spawner is an optional pre-spawn hook
	Spawner Spawner

	// OnStateChange is called on every transition while the scheduler holds
	// its lock; it must not call back into the scheduler.
	OnStateChange func(from, to State)
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SpawnRate:        1,
		MaxSpawnAttempts: 3,
		SpawnBackoff:     100 * time.Millisecond,
	}
}

// Scheduler keeps a population of virtual users at a target size.
//
// New users are started no faster than SpawnRate. Lowering the target stops
// only running users above the new target (newest first); the rest keep
// running. A user that ends itself with ErrStopUser, or a slot abandoned
// after failed spawns, is not refilled but never causes a running user to
// be stopped.
//
// Transitions: Idle -> RampingUp -> Steady -> RampingDown -> Stopped, with
// Steady <-> RampingUp/RampingDown while the target moves.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	cfg     SchedulerConfig
	users   UserConfig
	logger  *zap.Logger
	limiter *rate.Limiter

	state atomic.Int32

	mu        sync.Mutex
	live      map[int]*VirtualUser
	target    int
	retired   int
	abandoned int
	nextID    int
	started   bool
	stopping  bool

	wake       chan struct{}
	runCtx     context.Context
	runCancel  context.CancelFunc
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	wg         sync.WaitGroup

	exhausted     chan struct{}
	exhaustedOnce sync.Once
	errCh         chan error
	errOnce       sync.Once
}

// NewScheduler creates a scheduler. users.Tasks must be set before Start.
func NewScheduler(cfg SchedulerConfig, users UserConfig) *Scheduler {
	if cfg.MaxSpawnAttempts <= 0 {
		cfg.MaxSpawnAttempts = 3
	}
	if cfg.SpawnBackoff <= 0 {
		cfg.SpawnBackoff = 100 * time.Millisecond
	}
	logger := users.Logger
	if logger == nil {
		logger = zap.NewNop()
		users.Logger = logger
	}

	return &Scheduler{
		cfg:       cfg,
		users:     users,
		logger:    logger.Named("scheduler"),
		limiter:   rate.NewLimiter(spawnLimit(cfg.SpawnRate), 1),
		live:      make(map[int]*VirtualUser),
		wake:      make(chan struct{}, 1),
		loopDone:  make(chan struct{}),
		exhausted: make(chan struct{}),
		errCh:     make(chan error, 1),
	}
}

func spawnLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// Start begins spawning toward target. Users run under a context derived
// from ctx; cancelling ctx aborts them, including in-flight requests.
func (s *Scheduler) Start(ctx context.Context, target int) error {
	if target < 0 {
		return configErrorf("users", "target user count must be >= 0, got %d", target)
	}
	if s.users.Tasks == nil {
		return configErrorf("tasks", "task registry is empty")
	}

	s.mu.Lock()
	if s.started || s.stopping {
		s.mu.Unlock()
		return ErrSchedulerStarted
	}
	s.started = true
	s.target = target
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	loopCtx, loopCancel := context.WithCancel(s.runCtx)
	s.loopCancel = loopCancel
	if target == 0 {
		s.setState(StateSteady)
	} else {
		s.setState(StateRampingUp)
	}
	s.mu.Unlock()

	s.logger.Info("starting users",
		zap.Int("target", target),
		zap.Float64("spawnRate", s.cfg.SpawnRate))

	go s.loop(loopCtx)
	return nil
}

// SetTarget changes the target population. Increases ramp up at the spawn
// rate; decreases stop only the excess users.
func (s *Scheduler) SetTarget(target int) error {
	if target < 0 {
		return configErrorf("users", "target user count must be >= 0, got %d", target)
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return ErrSchedulerStopping
	}
	previous := s.target
	s.target = target
	s.mu.Unlock()

	if previous != target {
		s.logger.Info("target changed", zap.Int("from", previous), zap.Int("to", target))
	}
	s.nudge()
	return nil
}

// SetSpawnRate changes how many users are started per second.
func (s *Scheduler) SetSpawnRate(perSecond float64) {
	s.limiter.SetLimit(spawnLimit(perSecond))
}

// SpawnRate returns the current spawn rate, 0 when unlimited.
func (s *Scheduler) SpawnRate() float64 {
	limit := s.limiter.Limit()
	if limit == rate.Inf {
		return 0
	}
	return float64(limit)
}

// Stop asks every user to stop after its current task and waits for all of
// them to exit. If ctx expires first, the users' context is cancelled so
// in-flight requests are aborted; Stop still waits for the exits and then
// returns ctx's error.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.stopping = true
		s.setState(StateStopped)
		s.mu.Unlock()
		return nil
	}
	if !s.stopping {
		s.stopping = true
		s.target = 0
		s.setState(StateRampingDown)
		for _, u := range s.live {
			u.RequestStop()
		}
		s.logger.Info("stopping users", zap.Int("live", len(s.live)))
	}
	s.mu.Unlock()

	s.loopCancel()
	<-s.loopDone

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, cancelling in-flight requests")
		s.runCancel()
		<-drained
		err = ctx.Err()
	}
	s.runCancel()

	s.mu.Lock()
	s.setState(StateStopped)
	s.updateActive()
	s.mu.Unlock()
	return err
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Target returns the current target population.
func (s *Scheduler) Target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// LiveUsers returns the number of users whose loop has not returned,
// including users that are draining.
func (s *Scheduler) LiveUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Users returns the live users ordered by ID.
func (s *Scheduler) Users() []*VirtualUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*VirtualUser, 0, len(s.live))
	for _, u := range s.live {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Retired returns how many users ended themselves.
func (s *Scheduler) Retired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retired
}

// Abandoned returns how many slots were given up after failed spawns.
func (s *Scheduler) Abandoned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned
}

// Exhausted is closed when every user slot has ended on its own (retired or
// abandoned) and no user is left running.
func (s *Scheduler) Exhausted() <-chan struct{} {
	return s.exhausted
}

// Err delivers at most one unrecoverable *SchedulerError: every slot of the
// target was abandoned.
func (s *Scheduler) Err() <-chan error {
	return s.errCh
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	for {
		if s.reconcile() {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			s.spawnOne(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
	}
}

// reconcile stops excess users, updates the state and reports whether a new
// user should be spawned.
func (s *Scheduler) reconcile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return false
	}

	active := make([]int, 0, len(s.live))
	for id, u := range s.live {
		if !u.stopRequested() {
			active = append(active, id)
		}
	}

	if excess := len(active) - s.target; excess > 0 {
		sort.Sort(sort.Reverse(sort.IntSlice(active)))
		for i := 0; i < excess && i < len(active); i++ {
			s.live[active[i]].RequestStop()
		}
		s.logger.Debug("stopping excess users", zap.Int("count", min(excess, len(active))))
		active = active[min(excess, len(active)):]
	}

	spawn := len(s.live)+s.retired+s.abandoned < s.target
	draining := len(s.live) - len(active)

	switch {
	case spawn:
		s.setState(StateRampingUp)
	case draining > 0:
		s.setState(StateRampingDown)
	default:
		s.setState(StateSteady)
	}
	return spawn
}

func (s *Scheduler) spawnOne(ctx context.Context) {
	s.mu.Lock()
	if s.stopping || len(s.live)+s.retired+s.abandoned >= s.target {
		s.mu.Unlock()
		return
	}
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	attempts, err := s.preflight(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping || ctx.Err() != nil {
		return
	}
	if err == nil && len(s.live)+s.retired+s.abandoned >= s.target {
		// target dropped while the spawn hook ran
		return
	}

	if err != nil {
		s.abandoned++
		if s.users.Stats != nil {
			s.users.Stats.RecordAbandonedUser()
		}
		schedErr := &SchedulerError{Slot: id, Attempts: attempts, Err: err}
		s.logger.Warn("abandoning user slot", zap.Error(schedErr))
		if s.abandoned >= s.target {
			s.errOnce.Do(func() { s.errCh <- schedErr })
		}
		s.checkExhausted()
		return
	}

	u := NewVirtualUser(id, s.users)
	s.live[id] = u
	s.wg.Add(1)
	go s.runUser(u)
	s.updateActive()
}

// preflight runs the Spawner hook with bounded exponential backoff.
func (s *Scheduler) preflight(ctx context.Context, id int) (int, error) {
	if s.cfg.Spawner == nil {
		return 1, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.SpawnBackoff
	b.MaxInterval = 20 * s.cfg.SpawnBackoff

	attempts := 0
	_, err := backoff.Retry(ctx,
		func() (struct{}, error) {
			attempts++
			return struct{}{}, s.cfg.Spawner(ctx, id)
		},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.MaxSpawnAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Debug("spawn failed, retrying",
				zap.Int("user", id),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	return attempts, err
}

func (s *Scheduler) runUser(u *VirtualUser) {
	defer s.wg.Done()

	u.Run(s.runCtx)

	s.mu.Lock()
	delete(s.live, u.ID)
	if !u.stopRequested() && !s.stopping && s.runCtx.Err() == nil {
		s.retired++
		s.logger.Debug("user exited on its own", zap.Int("user", u.ID))
	}
	s.updateActive()
	s.checkExhausted()
	s.mu.Unlock()

	s.nudge()
}

// checkExhausted must be called with s.mu held.
func (s *Scheduler) checkExhausted() {
	if s.stopping || s.target == 0 || len(s.live) > 0 {
		return
	}
	if s.retired+s.abandoned >= s.target {
		s.exhaustedOnce.Do(func() { close(s.exhausted) })
	}
}

// updateActive must be called with s.mu held.
func (s *Scheduler) updateActive() {
	if s.users.Stats != nil {
		s.users.Stats.SetActiveUsers(len(s.live))
	}
}

// setState must be called with s.mu held.
func (s *Scheduler) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.logger.Debug("state change", zap.Stringer("from", from), zap.Stringer("to", to))
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(from, to)
	}
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
