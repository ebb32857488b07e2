// Package microkern implements the kernel core of a small embedded
// operating system: a preemptive, priority-based task scheduler with a
// monotonic wrapping tick source, a deadline-ordered sleep queue,
// time-of-day derivation, and time-change notification.
//
// The kernel is a portable rendition of the classic single-CPU RTOS
// design. Tasks are caller-owned records with caller-owned stacks;
// priorities are 8-bit, lower is more urgent, and globally unique among
// living tasks. Exactly one task is running at any time, the idle task
// is always eligible, and every mutation of kernel state happens inside
// a single interrupt-mask style critical section.
//
// Task State Machine:
//
//	TaskUninit   → TaskReady                  [TaskInit]
//	TaskReady    → TaskRunning                [schedule]
//	TaskRunning  → TaskReady                  [preemption, Yield]
//	TaskRunning  → TaskSleeping               [Delay]
//	TaskSleeping → TaskReady                  [tick expiry, TaskWake]
//	TaskReady    → TaskRemoved                [TaskRemove]
//	TaskSleeping → TaskRemoved                [TaskRemove]
//
// The architecture context switch is isolated behind the Arch
// capability; the default implementation backs each task with a
// goroutine parked on a hand-off channel, so the scheduler's notion of
// "the CPU" is exactly one dispatched goroutine.
//
// Time is driven externally: a periodic timer (hardware on a target, a
// ticker or a test in this rendition) calls Kernel.TickAdvance from the
// interrupt context. The tick is a 32-bit wrapping counter; uptime and
// wall-clock time are derived from a cached base that is rebased
// whenever the counter's sign bit flips, keeping every derived delta
// below 2³¹ ticks.
package microkern
