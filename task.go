package microkern

// TaskFunc is a task's entry function. Task functions normally never
// return; if one does, the task is removed as though by TaskRemove and
// its goroutine exits.
type TaskFunc func(arg any)

// WaitFlags is a bitset of the synchronization primitives a task is
// currently waiting on. The flags are maintained by synchronization
// primitives built on top of the kernel core; a task with any flag set
// cannot be removed.
type WaitFlags uint8

const (
	// WaitMutex indicates the task is waiting on a mutex.
	WaitMutex WaitFlags = 1 << iota
	// WaitSem indicates the task is waiting on a semaphore.
	WaitSem
	// WaitEvent indicates the task is waiting on an event queue.
	WaitEvent
)

// IdlePriority is the priority of the kernel-created idle task: the
// lowest priority (highest numeric value). No other task may use it.
const IdlePriority uint8 = 0xff

// TicksForever is the distinguished duration meaning "wait forever".
// It is a sentinel, not an error: a task delayed by TicksForever is
// only woken by an external TaskWake, and a sanity interval of
// TicksForever disables sanity registration for the task.
const TicksForever uint32 = ^uint32(0)

// Task represents one thread of control. The record and the stack are
// owned by the caller from TaskInit until removal; the kernel never
// frees either. A Task must not be copied after TaskInit.
type Task struct {
	_ [0]func() // Prevent copying

	// Immutable after TaskInit.
	name  string
	id    uint32
	entry TaskFunc
	arg   any
	kern  *Kernel
	stack []uintptr

	// Architecture context. runCh is the dispatch hand-off: receiving
	// from it is "being switched to". savedSP is the index of the saved
	// stack pointer within the stack region.
	runCh   chan struct{}
	kill    chan struct{}
	savedSP int
	gid     uint64

	// Scheduler state, guarded by the kernel critical section.
	state       TaskState
	priority    uint8
	parked      bool // context is suspended (or committed to suspend)
	pending     bool // dispatch delivered but not yet consumed
	nextWakeup  uint32
	waitForever bool
	flags       WaitFlags
	lockCount   uint8

	// Statistics, guarded by the kernel critical section.
	ctxSwitches uint64
	runTime     uint64 // ticks spent running
	lastRunTick uint32

	sanity SanityRecord
}

// Name returns the task's human-readable name.
func (t *Task) Name() string { return t.name }

// ID returns the task's stable identifier, assigned at TaskInit.
func (t *Task) ID() uint32 { return t.id }

// Priority returns the task's priority. Lower is more urgent.
func (t *Task) Priority() uint8 { return t.priority }

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState {
	sr := t.kern.cs.Enter()
	s := t.state
	t.kern.cs.Exit(sr)
	return s
}

// Sanity returns the task's sanity-check record. The record is
// registered with the kernel's SanityChecker at TaskInit when the
// task's sanity interval is not TicksForever.
func (t *Task) Sanity() *SanityRecord { return &t.sanity }

// SetWaitFlag marks the task as waiting on a synchronization
// primitive. For use by synchronization primitives built on the
// kernel core.
func (t *Task) SetWaitFlag(f WaitFlags) {
	sr := t.kern.cs.Enter()
	t.flags |= f
	t.kern.cs.Exit(sr)
}

// ClearWaitFlag clears a wait flag previously set with SetWaitFlag.
func (t *Task) ClearWaitFlag(f WaitFlags) {
	sr := t.kern.cs.Enter()
	t.flags &^= f
	t.kern.cs.Exit(sr)
}

// AddLockRef records that the task acquired a lock. A task with a
// non-zero lock count cannot be removed. For use by synchronization
// primitives built on the kernel core.
func (t *Task) AddLockRef() {
	sr := t.kern.cs.Enter()
	t.lockCount++
	t.kern.cs.Exit(sr)
}

// ReleaseLockRef records that the task released a lock.
func (t *Task) ReleaseLockRef() {
	sr := t.kern.cs.Enter()
	if t.lockCount == 0 {
		t.kern.cs.Exit(sr)
		panic("microkern: lock count underflow")
	}
	t.lockCount--
	t.kern.cs.Exit(sr)
}

// TaskInfo is a snapshot of one task, filled by Kernel.TaskNext.
type TaskInfo struct {
	ID       uint32
	Name     string
	Priority uint8
	State    TaskState

	// StackSize and StackUsed are in stack words. StackUsed is the
	// watermark: the stack is filled with a sentinel pattern at
	// TaskInit and scanned from the low address upward until the first
	// cell that no longer matches.
	StackSize int
	StackUsed int

	ContextSwitches uint64
	RunTime         uint64 // ticks spent running

	// LastCheckin and NextCheckin are sanity-check ticks; NextCheckin
	// is zero when the task has no sanity interval.
	LastCheckin uint32
	NextCheckin uint32
}
