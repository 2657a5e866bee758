// Package core is the measurement-and-control pipeline of the pen: it times a
// 40 kHz pulse train to three receivers, filters the delays and answers host
// report requests.
//
// The core is driven by one cooperative main loop calling Poll and a fixed set
// of run-to-completion handlers (Tick, Overflow, Capture, Receive) wired to
// hardware events. Handlers own the writes to their flags; the main loop owns
// every read-then-clear.
package core

import (
	"io"
	"sync/atomic"
)

// Emitter drives the 40 kHz pulse-train output.
type Emitter interface {
	Enable()
	Disable()
}

// Hardware bundles the collaborators the core needs from the board.
type Hardware struct {
	Counter Counter   // free-running delay counter
	Emitter Emitter   // pulse-train output
	Button  Pin       // active-low brush button
	Out     io.Writer // serial byte-send primitive
}

// Core is the firmware state. Create it with New; the zero value is not usable.
type Core struct {
	timebase *Timebase
	emitter  Emitter
	pin      Pin
	out      io.Writer

	channels [NumChannels]channel
	timers   [numTimers]atomic.Int32
	mailbox  atomic.Uint32
	dropped  atomic.Uint32

	// Main loop only.
	timeout  bool
	gotPoint bool
	button   ButtonState
	filter   Filter
	line     [maxReportLen]byte
}

// New creates a core in its power-on state: timers primed, filter windows
// zeroed, mailbox idle and the timeout flag set so the first Poll starts a
// measurement cycle.
func New(hw Hardware) *Core {
	c := &Core{
		timebase: NewTimebase(hw.Counter),
		emitter:  hw.Emitter,
		pin:      hw.Button,
		out:      hw.Out,
		button:   NoPush,
		timeout:  true,
	}
	for i := range c.timers {
		c.timers[i].Store(timerReload[i])
	}
	c.mailbox.Store(IdleByte)
	return c
}

// Stabilized returns the filtered delay of every channel.
func (c *Core) Stabilized() [NumChannels]uint32 {
	var out [NumChannels]uint32
	for i := range c.channels {
		out[i] = c.channels[i].stabilized.Load()
	}
	return out
}

// Button returns the current debouncer state. Main loop only.
func (c *Core) Button() ButtonState {
	return c.button
}

// Armed reports whether channel ch waits for its next edge.
func (c *Core) Armed(ch int) bool {
	return c.channels[ch].armed.Load()
}

// Ready reports whether channel ch holds an unconsumed capture.
func (c *Core) Ready(ch int) bool {
	return c.channels[ch].ready.Load()
}

// TimedOut reports whether the current cycle was retired by the capture timeout.
func (c *Core) TimedOut() bool {
	return c.timeout
}

// GotPoint reports whether the current cycle already produced a filtered point.
func (c *Core) GotPoint() bool {
	return c.gotPoint
}
