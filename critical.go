package microkern

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// IntMask is the saved interrupt mask returned by critSection.Enter and
// consumed by critSection.Exit. On hardware this would be the prior
// PRIMASK/mstatus value; here it is the prior nesting depth, so nested
// use restores exactly the outer state rather than blindly unmasking.
type IntMask uint32

// critSection is the single interrupt-mask style critical section
// protecting all kernel state: the run and sleep queues, the tick
// counter, the time-of-day base, and the listener list.
//
// It is nestable from the context that holds it: re-entry increments
// the depth and Exit restores the depth passed to it, releasing only
// when the outermost save is restored. Enter and the matching Exit
// must be called from the same goroutine.
type critSection struct {
	mu    sync.Mutex
	owner atomic.Uint64 // goroutine ID holding the mask, 0 when unmasked
	depth uint32        // nesting depth, guarded by mu
}

// Enter masks "interrupts" and returns the prior mask.
func (c *critSection) Enter() IntMask {
	gid := getGoroutineID()
	if c.owner.Load() == gid {
		prior := c.depth
		c.depth++
		return IntMask(prior)
	}
	c.mu.Lock()
	c.owner.Store(gid)
	c.depth = 1
	return 0
}

// Exit restores the mask returned by the matching Enter.
func (c *critSection) Exit(mask IntMask) {
	if c.owner.Load() != getGoroutineID() || c.depth == 0 {
		panic("microkern: critical section exit without matching enter")
	}
	c.depth = uint32(mask)
	if c.depth == 0 {
		c.owner.Store(0)
		c.mu.Unlock()
	}
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
