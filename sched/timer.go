package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// DefaultTickRate is the rate of the periodic tick in Hz.
const DefaultTickRate = 1000

var ErrRate = errors.New("timer rate must be positive")

// Timer pends a task at a fixed rate while the scheduler runs. A tick that
// fires while the previous one is still pending or running is an overrun:
// it is merged into the pending run and counted.
type Timer struct {
	task     *Task
	period   time.Duration
	fired    atomic.Uint64
	overruns atomic.Uint64
}

// NewTimer attaches a periodic trigger of rateHz to task.
func NewTimer(task *Task, rateHz uint) (*Timer, error) {
	if rateHz == 0 {
		return nil, ErrRate
	}
	if task.handler == nil {
		return nil, errors.New("timer task " + task.name + " has no handler")
	}
	tm := &Timer{task: task, period: time.Second / time.Duration(rateHz)}
	s := task.s
	s.mu.Lock()
	s.timers = append(s.timers, tm)
	s.mu.Unlock()
	return tm, nil
}

// Period returns the interval between ticks.
func (tm *Timer) Period() time.Duration { return tm.period }

// Fired returns the number of ticks delivered so far.
func (tm *Timer) Fired() uint64 { return tm.fired.Load() }

// Overruns returns the number of ticks that found the task still pending.
func (tm *Timer) Overruns() uint64 { return tm.overruns.Load() }

func (tm *Timer) run(ctx context.Context) {
	ticker := time.NewTicker(tm.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tm.fired.Add(1)
			if !tm.task.Pend() {
				tm.overruns.Add(1)
			}
		}
	}
}
