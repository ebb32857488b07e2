package microkern

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// Kernel is one instance of the kernel core: the scheduler, the tick
// source, the sleep queue, the time-of-day base, and the listener
// list, all protected by a single critical section.
//
// A Kernel is created with New, populated with tasks via TaskInit, and
// started with Start. The timer "interrupt" is delivered by calling
// TickAdvance from any goroutine.
type Kernel struct {
	_ [0]func() // Prevent copying

	cs    critSection
	state *kernState
	arch  Arch

	logger    *logiface.Logger[logiface.Event]
	sanity    SanityChecker
	debugMode bool
	tps       uint32

	// tick is written under the critical section but read with a plain
	// atomic load, matching a 32-bit-atomic hardware counter read.
	tick atomic.Uint32

	// Everything below is guarded by cs.
	ready     runQueue
	sleepers  sleepQueue
	tasks     []*Task // global task list, creation order
	byGID     map[uint64]*Task
	current   *Task
	idle      *Task
	lastID    uint32
	tod       timeBase
	listeners []*TimeChangeListener

	stopOnce sync.Once
	done     chan struct{}

	idleTask  Task
	idleStack []uintptr
}

// New creates a new kernel in the Boot state, with its idle task
// already initialized at IdlePriority.
func New(opts ...Option) (*Kernel, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	arch := cfg.arch
	if arch == nil {
		arch = newGoArch()
	}

	k := &Kernel{
		state:     newKernState(),
		arch:      arch,
		logger:    cfg.logger,
		sanity:    cfg.sanity,
		debugMode: cfg.debugMode,
		tps:       cfg.tps,
		byGID:     make(map[uint64]*Task),
		done:      make(chan struct{}),
		idleStack: make([]uintptr, cfg.idleStackWords),
	}

	if err := k.TaskInit(&k.idleTask, "idle", k.idleLoop, nil,
		IdlePriority, TicksForever, k.idleStack); err != nil {
		return nil, err
	}
	k.idle = &k.idleTask

	return k, nil
}

// Start starts the scheduler: the highest-priority ready task is
// dispatched, and Start blocks until the kernel stops (via Stop or ctx
// cancellation). To run in a separate goroutine, use `go k.Start(ctx)`.
func (k *Kernel) Start(ctx context.Context) error {
	if !k.state.TryTransition(StateBoot, StateRunning) {
		if k.state.Load() == StateRunning {
			return ErrAlreadyStarted
		}
		return ErrStopped
	}

	sr := k.cs.Enter()
	first := k.ready.head()
	k.ready.remove(first)
	first.state = TaskRunning
	first.ctxSwitches++
	first.lastRunTick = k.tick.Load()
	first.pending = true
	k.current = first
	k.cs.Exit(sr)

	k.logger.Info().
		Str("category", "kernel").
		Str("task", first.name).
		Log("kernel started")

	k.arch.Switch(nil, first)

	select {
	case <-ctx.Done():
		_ = k.Stop(context.Background())
		return ctx.Err()
	case <-k.done:
		return nil
	}
}

// Stop stops the scheduler and tears down all task contexts. Suspended
// tasks exit immediately; a task that is executing outside the kernel
// exits at its next kernel entry. Stop is idempotent; subsequent calls
// return ErrStopped.
func (k *Kernel) Stop(ctx context.Context) error {
	_ = ctx
	stopped := false
	k.stopOnce.Do(func() {
		k.state.TransitionAny([]KernelState{StateBoot, StateRunning}, StateStopping)
		k.arch.Stop()
		k.state.Store(StateStopped)
		close(k.done)
		stopped = true

		k.logger.Info().
			Str("category", "kernel").
			Log("kernel stopped")
	})
	if !stopped {
		return ErrStopped
	}
	return nil
}

// State returns the kernel's lifecycle state.
func (k *Kernel) State() KernelState {
	return k.state.Load()
}

// TicksPerSecond returns the configured tick rate.
func (k *Kernel) TicksPerSecond() uint32 {
	return k.tps
}

// runningLocked reports whether the scheduler is active. Callers hold
// the critical section, but the state itself is read atomically.
func (k *Kernel) runningLocked() bool {
	return k.state.Load() == StateRunning
}

// taskSelfLocked returns the task bound to the calling goroutine, or
// nil when called from outside any task (boot, interrupt, or external
// goroutines). Caller must hold the critical section.
func (k *Kernel) taskSelfLocked() *Task {
	return k.byGID[getGoroutineID()]
}

// CurrentTask returns the task that currently owns the CPU, or nil
// before Start.
func (k *Kernel) CurrentTask() *Task {
	sr := k.cs.Enter()
	t := k.current
	k.cs.Exit(sr)
	return t
}

// assertFailed reports a programming error: panic in debug mode,
// ErrInvalidParam otherwise.
func (k *Kernel) assertFailed(msg string) error {
	if k.debugMode {
		panic("microkern: " + msg)
	}
	return ErrInvalidParam
}
