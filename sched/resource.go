package sched

// Resource is state shared between tasks. It is built once before the
// scheduler runs and only reached through Lock afterwards.
type Resource[T any] struct {
	s       *Scheduler
	ceiling Priority
	value   T
	owner   *Task
	depth   int
}

// NewResource wraps value. The ceiling is the highest priority in users.
func NewResource[T any](s *Scheduler, value T, users ...Priority) *Resource[T] {
	ceil := PriorityIdle
	for _, p := range users {
		if p > ceil {
			ceil = p
		}
	}
	return &Resource[T]{s: s, ceiling: ceil, value: value}
}

// Ceiling returns the resource's ceiling priority.
func (r *Resource[T]) Ceiling() Priority { return r.ceiling }

// Lock runs f with exclusive access to the value. The caller's effective
// priority is raised to the ceiling for the duration of f. Keep f short: it
// bounds how long a higher priority task can be kept waiting.
func (r *Resource[T]) Lock(c *Context, f func(*T)) {
	s := r.s
	s.mu.Lock()
	if !s.canEnter(c, r.owner) {
		s.waiting[c.task.prio]++
		for !s.canEnter(c, r.owner) {
			s.cond.Wait()
		}
		s.waiting[c.task.prio]--
	}
	r.owner = c.task
	r.depth++
	s.held = append(s.held, hold{ceiling: r.ceiling, res: r, owner: c.task})
	prev := c.effective
	if r.ceiling > c.effective {
		c.effective = r.ceiling
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for i := len(s.held) - 1; i >= 0; i-- {
			if s.held[i].res == any(r) && s.held[i].owner == c.task {
				s.held = append(s.held[:i], s.held[i+1:]...)
				break
			}
		}
		r.depth--
		if r.depth == 0 {
			r.owner = nil
		}
		c.effective = prev
		s.cond.Broadcast()
		s.mu.Unlock()
	}()
	f(&r.value)
}
