package core

import "sync/atomic"

// NumChannels is the number of receivers, one per spatial axis.
const NumChannels = 3

// channel is the per-receiver capture state. The edge handler owns the
// armed -> ready transition, the main loop owns everything else.
type channel struct {
	armed      atomic.Bool   // next qualifying edge must be captured
	ready      atomic.Bool   // raw holds a capture not yet consumed
	raw        atomic.Uint32 // valid only while ready
	stabilized atomic.Uint32 // last filtered output, always valid
}

// rearm prepares the channel for a new cycle. Must run inside a critical section.
func (c *channel) rearm() {
	c.ready.Store(false)
	c.raw.Store(0)
	c.armed.Store(true)
}

// capture stores the extended count on the first edge after rearm.
func (c *channel) capture(tb *Timebase) {
	if !c.armed.Load() {
		return
	}
	c.raw.Store(tb.Extended())
	c.armed.Store(false)
	c.ready.Store(true)
}

// Capture is the rising-edge handler for receiver ch. Edges arriving while the
// channel is not armed (late echoes, reflections from a previous cycle) are
// ignored.
func (c *Core) Capture(ch int) {
	if ch < 0 || ch >= NumChannels {
		return
	}
	state := disableInterrupts()
	c.channels[ch].capture(c.timebase)
	restoreInterrupts(state)
}

// Overflow is the hardware counter overflow handler.
func (c *Core) Overflow() {
	state := disableInterrupts()
	c.timebase.Overflow()
	restoreInterrupts(state)
}
