package microkern

// SanityFunc is the per-record callback a sanity checker invokes when
// a task misses its check-in interval.
type SanityFunc func(rec *SanityRecord, arg any) error

// SanityRecord is the per-task record consumed by an external sanity
// checker. The kernel only stores it, stamps CheckinLast via
// TaskCheckin, and registers/deregisters it over the task's lifetime.
type SanityRecord struct {
	CheckinLast uint32 // tick of the most recent check-in
	CheckinItvl uint32 // maximum ticks between check-ins
	Func        SanityFunc
	Arg         any
}

// SanityChecker is the external sanity-check subsystem. A task's
// record is registered at TaskInit when its sanity interval is not
// TicksForever, and deregistered at removal.
type SanityChecker interface {
	Register(rec *SanityRecord) error
	Deregister(rec *SanityRecord) error
}

// TaskCheckin stamps the calling task's sanity record with the current
// tick. Must be called from task context; returns ErrNotStarted
// otherwise.
func (k *Kernel) TaskCheckin() error {
	sr := k.cs.Enter()
	self := k.taskSelfLocked()
	if self == nil {
		k.cs.Exit(sr)
		return ErrNotStarted
	}
	self.sanity.CheckinLast = k.tick.Load()
	k.cs.Exit(sr)
	return nil
}
