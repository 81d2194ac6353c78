// Package scheduler runs the engine's periodic batch jobs. Each task has an
// in-flight flag: a tick or trigger that arrives while the previous run is
// still going is skipped and counted rather than queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/matchloop/pkg/logger"
	"github.com/okian/matchloop/pkg/metrics"
)

// Task statuses reported to metrics.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ErrUnknownTask is returned by Trigger for an unregistered name.
var ErrUnknownTask = errors.New("unknown task")

// Task is a named periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// TaskState is a read-only view of a task's last run.
type TaskState struct {
	Name     string
	Running  bool
	LastRun  time.Time
	LastErr  error
	Runs     int64
	Skips    int64
	Interval time.Duration
}

type taskRunner struct {
	task    Task
	running atomic.Bool
	runs    atomic.Int64
	skips   atomic.Int64

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// Loop owns the tickers for a set of tasks.
type Loop struct {
	clock  Clock
	logger logger.Logger

	mu      sync.Mutex
	tasks   map[string]*taskRunner
	order   []string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewLoop constructs an idle loop.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		clock:  RealClock{},
		logger: logger.Nop(),
		tasks:  make(map[string]*taskRunner),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add registers a task. Tasks added after Start are not scheduled.
func (l *Loop) Add(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("task requires a name and a run function")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.tasks[t.Name]; dup {
		return fmt.Errorf("task %q already registered", t.Name)
	}
	l.tasks[t.Name] = &taskRunner{task: t}
	l.order = append(l.order, t.Name)
	return nil
}

// Start launches one ticker goroutine per task with a positive interval.
// Starting a running loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	l.started = true
	ctx, l.cancel = context.WithCancel(ctx)

	for _, name := range l.order {
		tr := l.tasks[name]
		if tr.task.Interval <= 0 {
			continue
		}
		ticker := l.clock.NewTicker(tr.task.Interval)
		l.wg.Add(1)
		go l.tick(ctx, tr, ticker)
	}
	l.logger.Info(ctx, "scheduler started", logger.Int("tasks", len(l.order)))
}

func (l *Loop) tick(ctx context.Context, tr *taskRunner, ticker Ticker) {
	defer l.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				_, _ = l.execute(ctx, tr)
			}()
		}
	}
}

// Trigger runs the named task now unless it is already in flight. It
// reports whether the task ran.
func (l *Loop) Trigger(ctx context.Context, name string) (bool, error) {
	l.mu.Lock()
	tr, ok := l.tasks[name]
	l.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return l.execute(ctx, tr)
}

func (l *Loop) execute(ctx context.Context, tr *taskRunner) (ran bool, err error) {
	name := tr.task.Name
	if !tr.running.CompareAndSwap(false, true) {
		tr.skips.Add(1)
		metrics.RecordScheduledSkip(name)
		l.logger.Debug(ctx, "task still running, skipping", logger.String("task", name))
		return false, nil
	}
	defer tr.running.Store(false)

	start := l.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
		took := l.clock.Now().Sub(start)
		status := StatusSuccess
		if err != nil {
			status = StatusFailed
			l.logger.Error(ctx, "scheduled task failed", logger.String("task", name), logger.Error(err))
		}
		metrics.RecordScheduledRun(name, status, took)
		tr.runs.Add(1)
		tr.mu.Lock()
		tr.lastRun = start
		tr.lastErr = err
		tr.mu.Unlock()
	}()

	return true, tr.task.Run(ctx)
}

// Running reports whether the named task is in flight.
func (l *Loop) Running(name string) bool {
	l.mu.Lock()
	tr, ok := l.tasks[name]
	l.mu.Unlock()
	return ok && tr.running.Load()
}

// State returns the state of every task in registration order.
func (l *Loop) State() []TaskState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TaskState, 0, len(l.order))
	for _, name := range l.order {
		tr := l.tasks[name]
		tr.mu.Lock()
		out = append(out, TaskState{
			Name:     name,
			Running:  tr.running.Load(),
			LastRun:  tr.lastRun,
			LastErr:  tr.lastErr,
			Runs:     tr.runs.Load(),
			Skips:    tr.skips.Load(),
			Interval: tr.task.Interval,
		})
		tr.mu.Unlock()
	}
	return out
}

// Stop cancels every ticker and waits for in-flight runs to return. A
// stopped loop may be started again.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.wg.Wait()

	l.mu.Lock()
	l.started = false
	l.mu.Unlock()
}
