package core

// Tick period and countdown reloads, in ticks.
const (
	TickMicros          = 500
	ButtonTicks         = 40 // button sampling cadence
	TrainPeriodTicks    = 40 // interval between pulse trains
	TrainLengthTicks    = 2  // pulse train duration
	CaptureTimeoutTicks = 15 // retire a cycle missing a receiver
)

const (
	timerButton = iota
	timerTrainPeriod
	timerTrainLength
	timerCaptureTimeout
	numTimers
)

var timerReload = [numTimers]int32{
	timerButton:         ButtonTicks,
	timerTrainPeriod:    TrainPeriodTicks,
	timerTrainLength:    TrainLengthTicks,
	timerCaptureTimeout: CaptureTimeoutTicks,
}

// Tick is the periodic dispatcher handler. It counts every timer down to zero
// and leaves reloading to the main loop.
func (c *Core) Tick() {
	for i := range c.timers {
		if v := c.timers[i].Load(); v > 0 {
			c.timers[i].CompareAndSwap(v, v-1)
		}
	}
}

func (c *Core) expired(timer int) bool {
	return c.timers[timer].Load() == 0
}

func (c *Core) reload(timer int) {
	c.timers[timer].Store(timerReload[timer])
}

// Poll runs one pass of the main loop. It never blocks.
func (c *Core) Poll() {
	if c.expired(timerButton) {
		c.reload(timerButton)
		c.button = c.button.Next(!c.pin.Get())
	}

	if c.expired(timerTrainPeriod) || c.timeout {
		c.startCycle()
	}

	if c.expired(timerTrainLength) {
		c.emitter.Disable()
	}

	if c.expired(timerCaptureTimeout) && !c.gotPoint {
		c.retire()
	}

	var raw [NumChannels]uint32
	if c.collect(&raw) {
		c.gotPoint = true
		c.process(raw)
	}

	c.serveReport()
}

// startCycle rearms every channel, restarts the timebase and fires a new train.
func (c *Core) startCycle() {
	state := disableInterrupts()
	for i := range c.channels {
		c.channels[i].rearm()
	}
	c.timebase.Reset()
	restoreInterrupts(state)

	c.reload(timerTrainPeriod)
	c.reload(timerTrainLength)
	c.reload(timerCaptureTimeout)
	c.timeout = false
	c.gotPoint = false
	c.emitter.Enable()
}

// retire drops an incomplete cycle and forces a resync on the next pass.
func (c *Core) retire() {
	state := disableInterrupts()
	for i := range c.channels {
		c.channels[i].ready.Store(false)
	}
	restoreInterrupts(state)
	c.timeout = true
}

// collect checks that all channels are ready and, if so, takes their raw
// delays and clears the ready flags as one unit relative to the edge handlers.
func (c *Core) collect(raw *[NumChannels]uint32) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := range c.channels {
		if !c.channels[i].ready.Load() {
			return false
		}
	}
	for i := range c.channels {
		raw[i] = c.channels[i].raw.Load()
		c.channels[i].ready.Store(false)
	}
	return true
}

// process runs the filter cascade on one completed cycle.
func (c *Core) process(raw [NumChannels]uint32) {
	for i, d := range raw {
		if !Accepts(d) {
			continue
		}
		c.channels[i].stabilized.Store(c.filter.Update(i, d))
	}
	c.filter.Advance()
}
