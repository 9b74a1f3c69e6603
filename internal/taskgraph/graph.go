// Package taskgraph provides a dependency-ordered, memoized task executor.
// Work is registered with declared target output paths; a task whose
// targets all exist on disk is considered satisfied and never re-executed,
// which makes interrupted pipelines resumable. Dependents of a failed task
// do not run, and failures surface at the next Join or JoinAll call.
package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"

	"landopt/internal/logging"
)

// ErrDependency tags task errors caused by an upstream failure rather than
// the task's own function.
var ErrDependency = errors.New("dependency failed")

type state int

const (
	statePending state = iota
	stateRunning
	stateDone
	stateFailed
)

// Task is a registered unit of work. A task transitions
// pending -> running -> done/failed exactly once.
type Task struct {
	name       string
	fn         func(context.Context) error
	targets    []string
	alwaysRun  bool
	deps       []*Task
	dependents []*Task

	// guarded by the graph mutex
	state state
	unmet int
	err   error

	done chan struct{}
}

// Name returns the task's unique name.
func (t *Task) Name() string { return t.name }

// Join blocks until the task and its transitive dependencies reach a
// terminal state and returns the task's failure, if any.
func (t *Task) Join() error {
	<-t.done
	return t.err
}

// Graph schedules registered tasks across a fixed set of workers while
// honoring dependency edges.
type Graph struct {
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   map[string]*Task
	owners  map[string]string // target path -> owning task name
	order   []*Task
	queue   []*Task
	closing bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a graph running at most workers tasks concurrently. Task
// functions receive a context derived from ctx, so canceling it reaches
// running tasks. workers values below one default to the machine's CPU
// count.
func New(ctx context.Context, logger *slog.Logger, workers int) *Graph {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(ctx)
	g := &Graph{
		logger: logging.NewComponentLogger(logger, "taskgraph"),
		tasks:  make(map[string]*Task),
		owners: make(map[string]string),
		ctx:    ctx,
		cancel: cancel,
	}
	g.cond = sync.NewCond(&g.mu)
	g.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go g.worker()
	}
	return g
}

// Option configures task registration.
type Option func(*taskOptions)

type taskOptions struct {
	alwaysRun bool
}

// AlwaysRun forces the task to execute on every registration, ignoring any
// pre-existing target files. Use it for cheap idempotent work whose prior
// artifacts should not be trusted as completion markers.
func AlwaysRun() Option {
	return func(o *taskOptions) { o.alwaysRun = true }
}

// Register adds a task to the graph. The task's name must be unique and
// its target paths must not belong to any other task; re-registering an
// existing name with identical targets returns the existing task.
// Arguments to fn are captured by the closure. When every target path
// already exists the task is marked satisfied without invoking fn, unless
// AlwaysRun is set.
func (g *Graph) Register(name string, fn func(context.Context) error, targets []string, deps []*Task, opts ...Option) (*Task, error) {
	var options taskOptions
	for _, opt := range opts {
		opt(&options)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closing {
		return nil, fmt.Errorf("taskgraph: register %q after close", name)
	}
	if existing, ok := g.tasks[name]; ok {
		if slices.Equal(existing.targets, targets) {
			return existing, nil
		}
		return nil, fmt.Errorf("taskgraph: task %q re-registered with different targets", name)
	}
	for _, target := range targets {
		if owner, ok := g.owners[target]; ok {
			return nil, fmt.Errorf("taskgraph: target %q already owned by task %q", target, owner)
		}
	}

	t := &Task{
		name:      name,
		fn:        fn,
		targets:   slices.Clone(targets),
		alwaysRun: options.alwaysRun,
		deps:      slices.Clone(deps),
		done:      make(chan struct{}),
	}
	g.tasks[name] = t
	g.order = append(g.order, t)
	for _, target := range targets {
		g.owners[target] = name
	}

	if !t.alwaysRun && len(t.targets) > 0 && targetsExist(t.targets) {
		g.logger.Debug("task satisfied by existing targets", logging.String(logging.FieldTask, name))
		t.state = stateDone
		close(t.done)
		return t, nil
	}

	var failedDep *Task
	for _, dep := range t.deps {
		switch dep.state {
		case stateDone:
		case stateFailed:
			if failedDep == nil {
				failedDep = dep
			}
		default:
			dep.dependents = append(dep.dependents, t)
			t.unmet++
		}
	}
	if failedDep != nil {
		g.failLocked(t, fmt.Errorf("%w: task %q skipped after %q: %w", ErrDependency, t.name, failedDep.name, failedDep.err))
		return t, nil
	}
	if t.unmet == 0 {
		g.enqueueLocked(t)
	}
	return t, nil
}

// JoinAll blocks until every registered task reaches a terminal state and
// returns an error naming the failed tasks, wrapping the first root-cause
// failure.
func (g *Graph) JoinAll() error {
	g.mu.Lock()
	tasks := slices.Clone(g.order)
	g.mu.Unlock()

	for _, t := range tasks {
		<-t.done
	}

	var failed []string
	var rootCause error
	g.mu.Lock()
	for _, t := range tasks {
		if t.state != stateFailed {
			continue
		}
		failed = append(failed, t.name)
		if rootCause == nil && !errors.Is(t.err, ErrDependency) {
			rootCause = t.err
		}
	}
	g.mu.Unlock()

	if len(failed) == 0 {
		return nil
	}
	if rootCause == nil {
		rootCause = errors.New("all failures caused by upstream tasks")
	}
	return fmt.Errorf("taskgraph: %s failed: %w", strings.Join(failed, ", "), rootCause)
}

// Close releases the scheduler's workers. Pending tasks are still drained;
// call JoinAll first when their results matter.
func (g *Graph) Close() {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return
	}
	g.closing = true
	g.cond.Broadcast()
	g.mu.Unlock()
	g.wg.Wait()
	g.cancel()
}

func (g *Graph) worker() {
	defer g.wg.Done()
	for {
		g.mu.Lock()
		for len(g.queue) == 0 && !g.closing {
			g.cond.Wait()
		}
		if len(g.queue) == 0 {
			g.mu.Unlock()
			return
		}
		t := g.queue[0]
		g.queue = g.queue[1:]
		t.state = stateRunning
		g.mu.Unlock()

		g.logger.Debug("task started", logging.String(logging.FieldTask, t.name))
		err := t.fn(g.ctx)
		g.complete(t, err)
	}
}

func (g *Graph) complete(t *Task, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.logger.Error("task failed", logging.String(logging.FieldTask, t.name), logging.Error(err))
		g.failLocked(t, err)
		return
	}
	g.logger.Debug("task completed", logging.String(logging.FieldTask, t.name))
	t.state = stateDone
	close(t.done)
	for _, dependent := range t.dependents {
		dependent.unmet--
		if dependent.unmet == 0 && dependent.state == statePending {
			g.enqueueLocked(dependent)
		}
	}
}

// failLocked marks a task failed and transitively skips its dependents.
func (g *Graph) failLocked(t *Task, err error) {
	if t.state == stateDone || t.state == stateFailed {
		return
	}
	t.state = stateFailed
	t.err = err
	close(t.done)
	for _, dependent := range t.dependents {
		if dependent.state != statePending {
			continue
		}
		g.failLocked(dependent, fmt.Errorf("%w: task %q skipped after %q: %w", ErrDependency, dependent.name, t.name, err))
	}
}

func (g *Graph) enqueueLocked(t *Task) {
	g.queue = append(g.queue, t)
	g.cond.Signal()
}

func targetsExist(targets []string) bool {
	for _, target := range targets {
		if _, err := os.Stat(target); err != nil {
			return false
		}
	}
	return true
}
