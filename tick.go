package microkern

import "math"

// Ticks returns the current tick. The counter is 32 bits and wraps;
// reads from task context observe monotonically non-decreasing values
// in program order (modulo the wrap).
func (k *Kernel) Ticks() uint32 {
	return k.tick.Load()
}

// TickAdvance advances the tick counter by n, the timer interrupt
// entry point. Expired sleepers are promoted to ready in deadline
// order and the schedule is re-evaluated; a promoted task that
// outranks the running one is dispatched before TickAdvance returns.
// Before the scheduler is started only the counter (and, on a sign-bit
// flip, the time-of-day base) is updated. TickAdvance(0) leaves all
// state unchanged and does not trigger a reschedule.
func (k *Kernel) TickAdvance(n uint32) {
	if n == 0 {
		return
	}

	sr := k.cs.Enter()
	prev := k.tick.Load()
	now := prev + n
	k.tick.Store(now)

	if (prev^now)&tickSignBit != 0 {
		// The delta against the time-of-day reference is about to span
		// the sign bit; rebase so unsigned subtraction never aliases.
		k.rebaseLocked(now)
		k.logger.Debug().
			Str("category", "tick").
			Uint64("tick", uint64(now)).
			Log("time base rebased")
	}

	if !k.runningLocked() {
		k.cs.Exit(sr)
		return
	}

	for _, t := range k.sleepers.drainExpired(now) {
		t.state = TaskReady
		t.waitForever = false
		k.mustInsertReady(t)
	}

	from, to := k.scheduleLocked(nil)
	k.cs.Exit(sr)
	k.ctxSwitch(from, to)
}

// MsToTicks converts milliseconds to ticks. With the default 1000
// ticks per second the conversion is the identity for every value it
// accepts. The computation is 64-bit; ErrOverflow is returned when the
// intermediate product ms·TPS exceeds 2³²−1.
func (k *Kernel) MsToTicks(ms uint32) (uint32, error) {
	p := uint64(ms) * uint64(k.tps)
	if p > math.MaxUint32 {
		return 0, ErrOverflow
	}
	return uint32(p / 1000), nil
}

// TicksToMs converts ticks to milliseconds. The computation is 64-bit;
// ErrOverflow is returned when the intermediate product ticks·1000
// exceeds 2³²−1.
func (k *Kernel) TicksToMs(ticks uint32) (uint32, error) {
	p := uint64(ticks) * 1000
	if p > math.MaxUint32 {
		return 0, ErrOverflow
	}
	return uint32(p / uint64(k.tps)), nil
}
