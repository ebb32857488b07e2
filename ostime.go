package microkern

import (
	"golang.org/x/exp/slices"
)

// TimeVal is a wall-clock or uptime instant with microsecond
// resolution.
type TimeVal struct {
	Sec  int64
	Usec int32
}

// TimeZone is the classic minutes-west-of-Greenwich plus DST-mode
// pair.
type TimeZone struct {
	MinutesWest int32
	DstTime     int32
}

// TimeChange describes one SetTimeOfDay to registered listeners.
// NewlySynced is true when IsTimeSet would have reported false just
// before the call.
type TimeChange struct {
	PrevTime TimeVal
	NewTime  TimeVal
	PrevTz   TimeZone
	NewTz    TimeZone

	NewlySynced bool
}

// TimeChangeListener is an externally owned record notified whenever
// the wall-clock or timezone is set. Listeners are invoked in
// registration order, in the context of the SetTimeOfDay caller, with
// the critical section released; a listener must not call
// SetTimeOfDay.
type TimeChangeListener struct {
	Fn func(ch TimeChange)
}

// timeBase is the cached snapshot from which uptime and wall-clock are
// derived by adding the tick delta against ostimeRef. It is rebased
// lazily: whenever the tick counter's sign bit flips, and whenever the
// wall-clock is explicitly set, keeping 0 ≤ tick−ostimeRef < 2³¹
// whenever time is derived.
type timeBase struct {
	ostimeRef uint32
	uptime    TimeVal // uptime at ostimeRef
	utc       TimeVal // wall-clock at ostimeRef
	tz        TimeZone
}

// rebaseLocked folds the accumulated tick delta into the uptime and
// wall-clock bases and resets the reference tick. Caller must hold the
// critical section.
func (k *Kernel) rebaseLocked(now uint32) {
	delta := now - k.tod.ostimeRef
	adv := k.deltaToTimeVal(delta)
	k.tod.uptime = tvAdd(k.tod.uptime, adv)
	k.tod.utc = tvAdd(k.tod.utc, adv)
	k.tod.ostimeRef = now
}

// deltaToTimeVal converts a tick delta to (seconds, microseconds).
func (k *Kernel) deltaToTimeVal(delta uint32) TimeVal {
	tps := uint64(k.tps)
	return TimeVal{
		Sec:  int64(uint64(delta) / tps),
		Usec: int32(uint64(delta) % tps * 1_000_000 / tps),
	}
}

// tvAdd adds two TimeVals, normalizing the microsecond carry.
func tvAdd(a, b TimeVal) TimeVal {
	sec := a.Sec + b.Sec
	usec := a.Usec + b.Usec
	if usec >= 1_000_000 {
		sec++
		usec -= 1_000_000
	}
	return TimeVal{Sec: sec, Usec: usec}
}

// Uptime returns the time since boot. The base is snapshotted inside
// the critical section; the tick delta is applied outside it.
func (k *Kernel) Uptime() TimeVal {
	sr := k.cs.Enter()
	base := k.tod.uptime
	ref := k.tod.ostimeRef
	k.cs.Exit(sr)

	return tvAdd(base, k.deltaToTimeVal(k.tick.Load()-ref))
}

// TimeOfDay returns the current wall-clock time and timezone, derived
// from the base the same way as Uptime.
func (k *Kernel) TimeOfDay() (TimeVal, TimeZone) {
	sr := k.cs.Enter()
	base := k.tod.utc
	tz := k.tod.tz
	ref := k.tod.ostimeRef
	k.cs.Exit(sr)

	return tvAdd(base, k.deltaToTimeVal(k.tick.Load()-ref)), tz
}

// IsTimeSet reports whether the wall-clock base holds a non-zero
// seconds value. The base also absorbs elapsed ticks whenever it is
// rebased (on a sign-bit flip, or by a SetTimeOfDay that supplies only
// a timezone), so it can report true before any time was supplied.
func (k *Kernel) IsTimeSet() bool {
	sr := k.cs.Enter()
	set := k.tod.utc.Sec > 0
	k.cs.Exit(sr)
	return set
}

// SetTimeOfDay sets the wall-clock time, the timezone, or both; both
// nil is ErrInvalidParam. The uptime base is advanced by the
// accumulated delta, the wall-clock and timezone are overwritten, and
// the reference tick is reset. Registered listeners are then notified,
// in registration order, outside the critical section.
func (k *Kernel) SetTimeOfDay(tv *TimeVal, tz *TimeZone) error {
	if tv == nil && tz == nil {
		return ErrInvalidParam
	}

	sr := k.cs.Enter()
	newly := k.tod.utc.Sec == 0
	k.rebaseLocked(k.tick.Load())
	prev := k.tod.utc
	prevTz := k.tod.tz
	if tv != nil {
		k.tod.utc = *tv
	}
	if tz != nil {
		k.tod.tz = *tz
	}
	ch := TimeChange{
		PrevTime:    prev,
		NewTime:     k.tod.utc,
		PrevTz:      prevTz,
		NewTz:       k.tod.tz,
		NewlySynced: newly,
	}
	notify := slices.Clone(k.listeners)
	k.cs.Exit(sr)

	for _, l := range notify {
		l.Fn(ch)
	}

	k.logger.Info().
		Str("category", "time").
		Uint64("sec", uint64(ch.NewTime.Sec)).
		Bool("newly_synced", ch.NewlySynced).
		Log("time of day set")
	return nil
}

// TimeChangeListen registers a listener. Registering the same listener
// twice is a programming error: it panics in debug mode and returns
// ErrInvalidParam otherwise.
func (k *Kernel) TimeChangeListen(l *TimeChangeListener) error {
	if l == nil || l.Fn == nil {
		return ErrInvalidParam
	}
	sr := k.cs.Enter()
	if slices.Contains(k.listeners, l) {
		k.cs.Exit(sr)
		return k.assertFailed("listener registered twice")
	}
	k.listeners = append(k.listeners, l)
	k.cs.Exit(sr)
	return nil
}

// TimeChangeRemove removes a previously registered listener. Removing
// a listener that was never registered returns ErrNotFound.
func (k *Kernel) TimeChangeRemove(l *TimeChangeListener) error {
	sr := k.cs.Enter()
	i := slices.Index(k.listeners, l)
	if i < 0 {
		k.cs.Exit(sr)
		return ErrNotFound
	}
	k.listeners = slices.Delete(k.listeners, i, i+1)
	k.cs.Exit(sr)
	return nil
}
