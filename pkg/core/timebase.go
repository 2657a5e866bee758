package core

import "sync/atomic"

// OverflowStep is added to the accumulator every time the hardware counter wraps.
const OverflowStep = 256

// Counter is the free-running 16-bit hardware counter used for delay timing.
type Counter interface {
	Count() uint16
	Reset()
}

// Timebase extends a Counter with a software overflow accumulator. The extended
// value is only meaningful within one measurement cycle; it is reset when a new
// pulse train is emitted.
type Timebase struct {
	counter  Counter
	overflow atomic.Uint32
}

// NewTimebase creates a Timebase on top of the given counter.
func NewTimebase(counter Counter) *Timebase {
	return &Timebase{counter: counter}
}

// Overflow accounts for one wrap of the hardware counter.
// Called from the counter overflow handler.
func (t *Timebase) Overflow() {
	t.overflow.Add(OverflowStep)
}

// Extended returns the hardware count plus the accumulated overflow.
func (t *Timebase) Extended() uint32 {
	return uint32(t.counter.Count()) + t.overflow.Load()
}

// Reset zeroes both the hardware counter and the accumulator.
func (t *Timebase) Reset() {
	t.counter.Reset()
	t.overflow.Store(0)
}
