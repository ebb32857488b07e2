package microkern

import (
	"golang.org/x/exp/slices"
)

// TaskInit initializes a caller-owned task record and stack and makes
// the task ready. The task's priority must be unique among living
// tasks; a duplicate panics in debug mode and returns ErrInvalidParam
// otherwise. When sanityItvl is not TicksForever and the kernel has a
// SanityChecker, the task's sanity record is registered; a
// registration failure is returned and leaves the task uninitialized.
//
// If the scheduler is already running and the new task outranks the
// running one, it runs before TaskInit returns.
func (k *Kernel) TaskInit(t *Task, name string, fn TaskFunc, arg any,
	priority uint8, sanityItvl uint32, stack []uintptr) error {
	if t == nil || fn == nil || len(stack) == 0 {
		return ErrInvalidParam
	}

	*t = Task{}
	t.name = name
	t.entry = fn
	t.arg = arg
	t.priority = priority
	t.kern = k
	t.stack = stack

	sr := k.cs.Enter()

	if k.prioInUseLocked(priority) {
		k.cs.Exit(sr)
		return k.assertFailed("duplicate task priority")
	}

	k.lastID++
	t.id = k.lastID
	now := k.tick.Load()
	t.sanity = SanityRecord{CheckinLast: now, CheckinItvl: sanityItvl}

	k.arch.StackInit(t)

	t.state = TaskReady
	k.tasks = append(k.tasks, t)
	k.mustInsertReady(t)

	if sanityItvl != TicksForever && k.sanity != nil {
		if err := k.sanity.Register(&t.sanity); err != nil {
			k.ready.remove(t)
			k.tasks = k.tasks[:len(k.tasks)-1]
			t.state = TaskUninit
			k.cs.Exit(sr)
			k.arch.Release(t)
			return err
		}
	}

	from, to := k.scheduleLocked(k.taskSelfLocked())
	k.cs.Exit(sr)

	k.logger.Debug().
		Str("category", "task").
		Str("task", name).
		Uint64("id", uint64(t.id)).
		Uint64("priority", uint64(priority)).
		Log("task initialized")

	k.ctxSwitch(from, to)
	return nil
}

// TaskRemove removes a task from the kernel. The running task cannot
// remove itself (ErrInvalidParam); a task that was never initialized
// or already removed yields ErrNotStarted; a task holding a lock or
// waiting on a synchronization primitive yields ErrBusy. On success
// the task appears in no queue and is never scheduled again; its
// record and stack remain caller-owned.
func (k *Kernel) TaskRemove(t *Task) error {
	if t == nil {
		return ErrInvalidParam
	}

	sr := k.cs.Enter()
	if t == k.current || t == k.idle {
		k.cs.Exit(sr)
		return ErrInvalidParam
	}
	switch t.state {
	case TaskReady, TaskSleeping:
	default:
		k.cs.Exit(sr)
		return ErrNotStarted
	}
	if t.flags != 0 || t.lockCount > 0 {
		k.cs.Exit(sr)
		return ErrBusy
	}

	if t.state == TaskReady {
		k.ready.remove(t)
	} else {
		k.sleepers.remove(t)
	}
	t.state = TaskRemoved
	k.removeFromListLocked(t)
	needDereg := t.sanity.CheckinItvl != TicksForever && k.sanity != nil
	k.cs.Exit(sr)

	if needDereg {
		_ = k.sanity.Deregister(&t.sanity)
	}
	k.arch.Release(t)

	k.logger.Debug().
		Str("category", "task").
		Str("task", t.name).
		Uint64("id", uint64(t.id)).
		Log("task removed")
	return nil
}

// taskExit retires a task whose entry function returned: the
// architecture layer calls it from the dying context, which never
// suspends again.
func (k *Kernel) taskExit(t *Task) {
	sr := k.cs.Enter()
	if t.state == TaskReady {
		k.ready.remove(t)
	}
	t.state = TaskRemoved
	k.removeFromListLocked(t)
	needDereg := t.sanity.CheckinItvl != TicksForever && k.sanity != nil
	_, to := k.scheduleLocked(nil)
	k.cs.Exit(sr)

	if needDereg {
		_ = k.sanity.Deregister(&t.sanity)
	}

	k.logger.Debug().
		Str("category", "task").
		Str("task", t.name).
		Uint64("id", uint64(t.id)).
		Log("task exited")

	k.ctxSwitch(nil, to)
}

// removeFromListLocked drops t from the global task list.
func (k *Kernel) removeFromListLocked(t *Task) {
	if i := slices.Index(k.tasks, t); i >= 0 {
		k.tasks = slices.Delete(k.tasks, i, i+1)
	}
}

// prioInUseLocked reports whether any living task holds the priority.
func (k *Kernel) prioInUseLocked(priority uint8) bool {
	for _, t := range k.tasks {
		if t.priority == priority {
			return true
		}
	}
	return false
}

// TaskNext iterates the global task list in creation order. Pass nil
// to begin; each call returns the task after prev together with a
// filled info record, or (nil, nil) at the end of the iteration. A
// prev that is no longer in the list also ends the iteration.
func (k *Kernel) TaskNext(prev *Task) (*Task, *TaskInfo) {
	sr := k.cs.Enter()
	defer k.cs.Exit(sr)

	i := 0
	if prev != nil {
		j := slices.Index(k.tasks, prev)
		if j < 0 {
			return nil, nil
		}
		i = j + 1
	}
	if i >= len(k.tasks) {
		return nil, nil
	}

	t := k.tasks[i]
	info := &TaskInfo{
		ID:              t.id,
		Name:            t.name,
		Priority:        t.priority,
		State:           t.state,
		StackSize:       len(t.stack),
		StackUsed:       stackWatermark(t.stack),
		ContextSwitches: t.ctxSwitches,
		RunTime:         t.runTime,
		LastCheckin:     t.sanity.CheckinLast,
	}
	if t.sanity.CheckinItvl != TicksForever {
		info.NextCheckin = t.sanity.CheckinLast + t.sanity.CheckinItvl
	}
	return t, info
}

// stackWatermark scans the stack region from the low address upward
// until the first cell differing from the sentinel, returning the
// number of words ever used.
func stackWatermark(stack []uintptr) int {
	free := 0
	for _, w := range stack {
		if w != stackPattern {
			break
		}
		free++
	}
	return len(stack) - free
}
