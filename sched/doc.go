// Package sched is a two-tier, priority based task dispatcher with
// priority-ceiling resource locks.
//
// Tasks model interrupt handlers: each runs to completion, never runs
// concurrently with itself, and is triggered either by Pend (a coalescing
// pending bit, like an interrupt flag) or inline through Exec from the
// goroutine that plays the hardware signal. Shared state lives in a Resource
// whose ceiling is the highest priority of the tasks that use it. Entering a
// critical section follows the immediate ceiling protocol: a task may lock
// only when no other task holds a resource whose ceiling reaches its own
// priority and no higher priority task is waiting. A high priority task is
// therefore denied for at most one lower priority critical section.
package sched
