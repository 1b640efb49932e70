package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Priority orders tasks. Higher values preempt lower ones.
type Priority uint8

const (
	PriorityIdle Priority = 0
	PriorityTick Priority = 1
	PriorityUSB  Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "idle"
	case PriorityTick:
		return "tick"
	case PriorityUSB:
		return "usb"
	default:
		return fmt.Sprintf("p%d", uint8(p))
	}
}

type hold struct {
	ceiling Priority
	res     any
	owner   *Task
}

// Scheduler owns the tasks, the periodic triggers and the system ceiling.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	held    []hold
	waiting [256]int
	tasks   []*Task
	timers  []*Timer
	logger  *slog.Logger
}

// New returns an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{logger: logger}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// NewTask registers a task. handler may be nil for tasks that are only ever
// entered through Exec.
func (s *Scheduler) NewTask(name string, prio Priority, handler func(*Context)) *Task {
	t := &Task{
		name:    name,
		prio:    prio,
		s:       s,
		handler: handler,
		pending: make(chan struct{}, 1),
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t
}

// Run dispatches pended tasks and drives the periodic triggers until ctx is
// done. It returns after every dispatcher goroutine has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	tasks := append([]*Task(nil), s.tasks...)
	timers := append([]*Timer(nil), s.timers...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tasks {
		if t.handler == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.dispatch(ctx)
		}()
	}
	for _, tm := range timers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.run(ctx)
		}()
	}
	s.logger.Debug("scheduler running", "tasks", len(tasks), "timers", len(timers))
	<-ctx.Done()
	wg.Wait()
	return nil
}

// canEnter reports whether c may lock a resource with the given owner.
// Callers hold s.mu.
func (s *Scheduler) canEnter(c *Context, owner *Task) bool {
	if owner != nil && owner != c.task {
		return false
	}
	for _, h := range s.held {
		if h.owner != c.task && h.ceiling >= c.task.prio {
			return false
		}
	}
	// A holder runs at its raised priority, so waiters below the ceiling
	// cannot block its nested locks.
	for p := int(c.effective) + 1; p < len(s.waiting); p++ {
		if s.waiting[p] > 0 {
			return false
		}
	}
	return true
}

// SystemCeiling returns the highest ceiling among held resources, or
// PriorityIdle when nothing is locked.
func (s *Scheduler) SystemCeiling() Priority {
	s.mu.Lock()
	defer s.mu.Unlock()
	ceil := PriorityIdle
	for _, h := range s.held {
		if h.ceiling > ceil {
			ceil = h.ceiling
		}
	}
	return ceil
}

// Task is a run-to-completion handler at a fixed priority.
type Task struct {
	name    string
	prio    Priority
	s       *Scheduler
	handler func(*Context)
	pending chan struct{}
	running sync.Mutex

	runs      atomic.Uint64
	coalesced atomic.Uint64
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Priority returns the task's base priority.
func (t *Task) Priority() Priority { return t.prio }

// Pend marks the task pending. A trigger that arrives while the task is
// already pending is merged into it and Pend reports false.
func (t *Task) Pend() bool {
	select {
	case t.pending <- struct{}{}:
		return true
	default:
		t.coalesced.Add(1)
		return false
	}
}

// Exec runs f as this task in the calling goroutine and returns when it
// completes. Concurrent Exec calls for the same task are serialized.
func (t *Task) Exec(f func(*Context)) {
	t.running.Lock()
	defer t.running.Unlock()
	t.runs.Add(1)
	f(&Context{task: t, effective: t.prio})
}

func (t *Task) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.pending:
			t.Exec(t.handler)
		}
	}
}

// Runs returns how many times the task has executed.
func (t *Task) Runs() uint64 { return t.runs.Load() }

// Coalesced returns how many triggers were merged into an already pending run.
func (t *Task) Coalesced() uint64 { return t.coalesced.Load() }

// Context is handed to a running task. It carries the task identity and its
// effective priority, which is raised to a resource's ceiling while the task
// holds it.
type Context struct {
	task      *Task
	effective Priority
}

// Task returns the running task.
func (c *Context) Task() *Task { return c.task }

// Effective returns the current effective priority.
func (c *Context) Effective() Priority { return c.effective }
