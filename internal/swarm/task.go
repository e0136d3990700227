// Package swarm simulates many concurrent users of an HTTP service.
//
// Tasks are registered on a Registry and frozen into a TaskSet before a run.
// A Scheduler spawns VirtualUsers at a bounded rate; each user repeatedly
// picks a task by weight, runs it, and waits before the next one. Request
// outcomes flow into a metrics.Collector.
package swarm

import (
	"context"
	"math/rand"
	"sort"
	"sync"
)

// TaskFunc is the action of a task. It issues requests through u.Client()
// and may keep per-user state with u.SetData.
type TaskFunc func(ctx context.Context, u *VirtualUser) error

// Task is a named, weighted action.
type Task struct {
	Name   string
	Weight int
	Action TaskFunc
}

// Registry collects tasks at configuration time.
//
// Example:
//
//	reg := swarm.NewRegistry()
//	reg.Register("movies", 3, listMovies)
//	reg.Register("healthcheck", 1, healthcheck)
//	tasks, err := reg.Build()
type Registry struct {
	mu    sync.Mutex
	tasks []Task
	names map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a task. Names must be unique and weights at least 1.
func (r *Registry) Register(name string, weight int, action TaskFunc) error {
	if name == "" {
		return configErrorf("tasks", "task name is required")
	}
	if weight < 1 {
		return configErrorf("tasks."+name+".weight", "weight must be >= 1, got %d", weight)
	}
	if action == nil {
		return configErrorf("tasks."+name, "task action is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.names[name]; dup {
		return configErrorf("tasks."+name, "duplicate task name")
	}
	r.names[name] = struct{}{}
	r.tasks = append(r.tasks, Task{Name: name, Weight: weight, Action: action})
	return nil
}

// MustRegister is like Register but panics on error. Intended for static
// task tables.
func (r *Registry) MustRegister(name string, weight int, action TaskFunc) {
	if err := r.Register(name, weight, action); err != nil {
		panic(err)
	}
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Build freezes the registered tasks into an immutable TaskSet.
func (r *Registry) Build() (*TaskSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.tasks) == 0 {
		return nil, configErrorf("tasks", "task registry is empty")
	}

	set := &TaskSet{
		tasks:      make([]Task, len(r.tasks)),
		cumulative: make([]int, len(r.tasks)),
	}
	copy(set.tasks, r.tasks)

	sum := 0
	for i, t := range set.tasks {
		sum += t.Weight
		set.cumulative[i] = sum
	}
	set.total = sum
	return set, nil
}

// Pick selects a task using rng. It fails with a ConfigurationError when the
// registry is empty.
func (r *Registry) Pick(rng *rand.Rand) (Task, error) {
	set, err := r.Build()
	if err != nil {
		return Task{}, err
	}
	return set.Pick(rng), nil
}

// TaskSet is an immutable weighted list of tasks. It is safe for concurrent
// use as long as each goroutine brings its own rand.Rand.
type TaskSet struct {
	tasks      []Task
	cumulative []int
	total      int
}

// Pick returns a task with probability weight/total.
func (s *TaskSet) Pick(rng *rand.Rand) Task {
	if len(s.tasks) == 1 {
		return s.tasks[0]
	}
	n := rng.Intn(s.total)
	i := sort.SearchInts(s.cumulative, n+1)
	return s.tasks[i]
}

// Tasks returns a copy of the tasks in registration order.
func (s *TaskSet) Tasks() []Task {
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// TotalWeight returns the sum of all weights.
func (s *TaskSet) TotalWeight() int {
	return s.total
}
