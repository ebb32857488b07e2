package microkern

import (
	"runtime"
	"sync"
)

// stackPattern is the sentinel filled into a task's stack at TaskInit,
// used for watermark measurement.
const stackPattern uintptr = 0xdeadbeef

// archFrameWords is the size, in stack words, of the initial frame
// StackInit lays out at the top of a fresh stack.
const archFrameWords = 8

// Arch is the architecture capability: the only component that knows
// how execution contexts are represented. The rest of the kernel has
// no knowledge of register layout; it only ever initializes a stack,
// switches between two tasks, releases a removed task's context, and
// tears everything down on Stop.
type Arch interface {
	// StackInit fills the task's stack with the sentinel pattern, lays
	// out an initial frame so the first switch into the task enters its
	// entry function with its argument, and records the saved stack
	// pointer. Called with the kernel critical section held.
	StackInit(t *Task)

	// Switch resumes to and, when from is non-nil, suspends the calling
	// context until from is next dispatched. Either argument may be
	// nil: Switch(nil, to) dispatches without suspending (the interrupt
	// exit path), Switch(from, nil) suspends without dispatching (a
	// preempted context parking late). Called with the critical section
	// released.
	Switch(from, to *Task)

	// Release discards a removed task's context. The context exits the
	// next time it would suspend, or immediately if already suspended.
	Release(t *Task)

	// Stop tears down all suspended contexts.
	Stop()
}

// goArch is the default Arch: each task is backed by a goroutine
// parked on a hand-off channel. A dispatch is a send; a suspension is
// a receive. At most one token is ever outstanding per task, so the
// channel needs a buffer of exactly one to decouple the ISR dispatch
// path from the suspended goroutine.
type goArch struct {
	quit     chan struct{}
	stopOnce sync.Once
}

func newGoArch() *goArch {
	return &goArch{quit: make(chan struct{})}
}

func (a *goArch) StackInit(t *Task) {
	for i := range t.stack {
		t.stack[i] = stackPattern
	}
	frame := min(archFrameWords, len(t.stack))
	for i := len(t.stack) - frame; i < len(t.stack); i++ {
		t.stack[i] = 0
	}
	t.savedSP = len(t.stack) - frame
	t.runCh = make(chan struct{}, 1)
	t.kill = make(chan struct{})
	t.parked = true
	go a.taskMain(t)
}

// taskMain is the goroutine behind a task: register, wait for the
// first dispatch, run the entry function, then exit the task.
func (a *goArch) taskMain(t *Task) {
	k := t.kern
	gid := getGoroutineID()

	sr := k.cs.Enter()
	t.gid = gid
	k.byGID[gid] = t
	k.cs.Exit(sr)

	defer func() {
		sr := k.cs.Enter()
		if k.byGID[gid] == t {
			delete(k.byGID, gid)
		}
		k.cs.Exit(sr)
	}()

	select {
	case <-t.runCh:
	case <-a.quit:
		return
	case <-t.kill:
		return
	}

	sr = k.cs.Enter()
	t.parked = false
	t.pending = false
	k.cs.Exit(sr)

	t.entry(t.arg)
	k.taskExit(t)
}

func (a *goArch) Switch(from, to *Task) {
	if to != nil {
		to.runCh <- struct{}{}
	}
	if from != nil {
		select {
		case <-from.runCh:
		case <-a.quit:
			runtime.Goexit()
		case <-from.kill:
			runtime.Goexit()
		}
	}
}

func (a *goArch) Release(t *Task) {
	close(t.kill)
}

func (a *goArch) Stop() {
	a.stopOnce.Do(func() {
		close(a.quit)
	})
}
