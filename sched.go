package microkern

import "runtime"

// scheduleLocked is the reschedule decision point, called (i) after
// tick processing, (ii) after a task becomes ready, (iii) after the
// running task enters sleep, and (iv) on voluntary yield.
//
// self is the task bound to the calling context, nil from interrupt or
// external contexts. The switch rule: let cand be the run-queue head;
// switch when cand strictly outranks the current task, or when the
// current task is no longer running. Tie-breaking is moot because
// priorities are unique.
//
// Caller must hold the critical section. The returned pair is handed
// to ctxSwitch after the section is released: to is the context to
// dispatch (nil when the winner never stopped executing), from is the
// calling context when it must suspend.
func (k *Kernel) scheduleLocked(self *Task) (from, to *Task) {
	if !k.runningLocked() || k.current == nil {
		if self != nil {
			// Only a stopping or stopped kernel has a task context here;
			// the caller suspends, and Arch teardown ends it.
			self.parked = true
			return self, nil
		}
		return nil, nil
	}

	cand := k.ready.head()
	cur := k.current
	if cand != nil && (cur.state != TaskRunning || cand.priority < cur.priority) {
		now := k.tick.Load()
		cur.runTime += uint64(now - cur.lastRunTick)
		if cur.state == TaskRunning {
			cur.state = TaskReady
			k.mustInsertReady(cur)
		}

		k.ready.remove(cand)
		cand.state = TaskRunning
		cand.ctxSwitches++
		cand.lastRunTick = now
		k.current = cand

		// Dispatch only a suspended context without a delivery already
		// in flight; a preempted context that never stopped executing
		// simply becomes current again.
		if cand.parked && !cand.pending {
			cand.pending = true
			to = cand
		}
	}

	if self != nil && self != k.current {
		// The calling context lost the CPU, either just now or by an
		// earlier preemption from interrupt context; it suspends before
		// returning to task code.
		self.parked = true
		from = self
	}
	return from, to
}

// mustInsertReady inserts into the run queue, panicking on a duplicate
// priority: uniqueness was checked at TaskInit, so a duplicate here is
// kernel-internal corruption.
func (k *Kernel) mustInsertReady(t *Task) {
	if err := k.ready.insert(t); err != nil {
		panic("microkern: duplicate priority in run queue")
	}
}

// ctxSwitch performs the architecture switch decided by scheduleLocked.
// Must be called with the critical section released; when from is
// non-nil the call blocks until from is next dispatched.
func (k *Kernel) ctxSwitch(from, to *Task) {
	if from == nil && to == nil {
		return
	}
	k.arch.Switch(from, to)
	if from != nil {
		sr := k.cs.Enter()
		from.parked = false
		from.pending = false
		k.cs.Exit(sr)
	}
}

// Yield re-evaluates the schedule, surrendering the CPU if a
// strictly-higher-priority task is ready. Because priorities are
// unique, yielding to an equal-priority task cannot occur; with no
// higher-priority task ready, Yield is a no-op.
func (k *Kernel) Yield() {
	sr := k.cs.Enter()
	self := k.taskSelfLocked()
	if self != nil && self.state == TaskRemoved {
		k.cs.Exit(sr)
		runtime.Goexit()
	}
	from, to := k.scheduleLocked(self)
	k.cs.Exit(sr)
	k.ctxSwitch(from, to)
}

// Delay suspends the calling task for at least ticks ticks. Delay(0)
// is a no-op: no context switch, no state change. Delay(TicksForever)
// sleeps with no deadline; only TaskWake resumes the task. Returns
// ErrNotStarted when called from outside any task.
func (k *Kernel) Delay(ticks uint32) error {
	sr := k.cs.Enter()
	self := k.taskSelfLocked()
	if self == nil {
		k.cs.Exit(sr)
		return ErrNotStarted
	}
	if self.state == TaskRemoved {
		k.cs.Exit(sr)
		runtime.Goexit()
	}
	if ticks == 0 {
		k.cs.Exit(sr)
		return nil
	}

	if self.state == TaskReady {
		// Preempted before reaching this suspension point; it sleeps
		// from the run queue rather than from the CPU.
		k.ready.remove(self)
	}
	self.state = TaskSleeping
	if ticks == TicksForever {
		self.waitForever = true
		self.nextWakeup = 0
	} else {
		self.waitForever = false
		self.nextWakeup = k.tick.Load() + ticks
	}
	k.sleepers.insert(self)

	from, to := k.scheduleLocked(self)
	k.cs.Exit(sr)
	k.ctxSwitch(from, to)
	return nil
}

// DelayMs suspends the calling task for at least ms milliseconds,
// converting via MsToTicks.
func (k *Kernel) DelayMs(ms uint32) error {
	ticks, err := k.MsToTicks(ms)
	if err != nil {
		return err
	}
	return k.Delay(ticks)
}

// TaskWake unconditionally moves a sleeping task to ready, whether its
// deadline expired or it was waiting forever, and reschedules. It is
// the wake half of the synchronization primitives built on the kernel
// core. Returns ErrNotStarted when the task is not sleeping.
func (k *Kernel) TaskWake(t *Task) error {
	if t == nil {
		return ErrInvalidParam
	}
	sr := k.cs.Enter()
	if t.state != TaskSleeping {
		k.cs.Exit(sr)
		return ErrNotStarted
	}
	k.sleepers.remove(t)
	t.state = TaskReady
	t.waitForever = false
	k.mustInsertReady(t)
	from, to := k.scheduleLocked(k.taskSelfLocked())
	k.cs.Exit(sr)
	k.ctxSwitch(from, to)
	return nil
}

// idleLoop is the idle task body: the portable analogue of
// wait-for-interrupt. It suspends until dispatched, then suspends
// again; all useful work happens elsewhere.
func (k *Kernel) idleLoop(any) {
	t := &k.idleTask
	for {
		sr := k.cs.Enter()
		t.parked = true
		k.cs.Exit(sr)
		k.ctxSwitch(t, nil)
	}
}
