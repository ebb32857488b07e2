package microkern

import (
	"sync/atomic"
)

// TaskState represents the lifecycle state of a task.
type TaskState uint8

const (
	// TaskUninit is the zero value: the task record has not been through
	// TaskInit (or was zeroed after removal).
	TaskUninit TaskState = iota
	// TaskReady indicates the task is eligible to run and queued in the
	// run queue.
	TaskReady
	// TaskRunning indicates the task currently owns the CPU. Exactly one
	// task is in this state at any time once the kernel has started.
	TaskRunning
	// TaskSleeping indicates the task is blocked in the sleep queue,
	// either until an absolute wake tick or forever.
	TaskSleeping
	// TaskRemoved indicates the task has been removed and will never be
	// scheduled again.
	TaskRemoved
)

// String returns a human-readable representation of the state.
func (s TaskState) String() string {
	switch s {
	case TaskUninit:
		return "Uninit"
	case TaskReady:
		return "Ready"
	case TaskRunning:
		return "Running"
	case TaskSleeping:
		return "Sleeping"
	case TaskRemoved:
		return "Removed"
	default:
		return "Unknown"
	}
}

// KernelState represents the lifecycle state of the kernel itself.
//
// State Machine:
//
//	StateBoot (0) → StateRunning (2)      [Start()]
//	StateBoot (0) → StateStopping (3)     [Stop() before Start()]
//	StateRunning (2) → StateStopping (3)  [Stop(), ctx cancellation]
//	StateStopping (3) → StateStopped (1)  [teardown complete]
//	StateStopped (1) → (terminal)
//
// State Transition Rules:
//   - Use TryTransition() (CAS) for contended transitions (Boot→Running,
//     Running→Stopping)
//   - Use Store() only for the irreversible StateStopped
type KernelState uint64

const (
	// StateBoot indicates the kernel has been created but not started;
	// tasks may be initialized and the tick may advance (counter only).
	StateBoot KernelState = 0
	// StateStopped indicates the kernel has been stopped and torn down.
	StateStopped KernelState = 1
	// StateRunning indicates the scheduler is active.
	StateRunning KernelState = 2
	// StateStopping indicates teardown has been requested but not
	// completed.
	StateStopping KernelState = 3
)

// String returns a human-readable representation of the state.
func (s KernelState) String() string {
	switch s {
	case StateBoot:
		return "Boot"
	case StateStopped:
		return "Stopped"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// kernState is a lock-free state machine with cache-line padding.
//
// Cache-line padding prevents false sharing with neighbouring kernel
// fields; the state is read on every tick and every reschedule.
type kernState struct { // betteralign:ignore
	_ [64]byte      // Cache line padding (before value) //nolint:unused
	v atomic.Uint64 // State value
	_ [56]byte      // Pad to complete cache line (64 - 8 = 56) //nolint:unused
}

// newKernState creates a new state machine in the Boot state.
func newKernState() *kernState {
	s := &kernState{}
	s.v.Store(uint64(StateBoot))
	return s
}

// Load returns the current state atomically.
func (s *kernState) Load() KernelState {
	return KernelState(s.v.Load())
}

// Store atomically stores a new state. Only valid for irreversible
// states; use TryTransition for contended ones.
func (s *kernState) Store(state KernelState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to
// another. Returns true if the transition was successful.
func (s *kernState) TryTransition(from, to KernelState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// TransitionAny attempts to transition from any of the given source
// states to the target. Returns true if the transition was successful.
func (s *kernState) TransitionAny(validFrom []KernelState, to KernelState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return true
		}
	}
	return false
}
