package pen

import (
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/itohio/usonicpen/pkg/config"
	"github.com/itohio/usonicpen/pkg/core"
)

// simCounter models the free-running delay counter. Reset bumps a generation
// so the simulated board knows a new pulse train is about to be emitted.
type simCounter struct {
	elapsed    atomic.Uint32
	generation atomic.Uint32
}

func (c *simCounter) Count() uint16 { return uint16(c.elapsed.Load()) }

func (c *simCounter) Reset() {
	c.elapsed.Store(0)
	c.generation.Add(1)
}

type simEmitter struct {
	on     atomic.Bool
	trains atomic.Uint32
}

func (e *simEmitter) Enable() {
	if !e.on.Swap(true) {
		e.trains.Add(1)
	}
}

func (e *simEmitter) Disable() { e.on.Store(false) }

// simButton is active-low like the real pin.
type simButton struct {
	pressed atomic.Bool
}

func (b *simButton) Get() bool { return !b.pressed.Load() }

// board simulates the pen hardware around a core: it advances the counter,
// fires the dispatcher tick and overflow handlers, and raises receiver edges
// when the echo of the current train arrives.
type board struct {
	cfg  *config.MockConfig
	conv *config.ConversionConfig
	rng  *rand.Rand

	counter simCounter
	emitter simEmitter
	button  simButton
	pen     *core.Core

	cyclesPerTick uint32
	ticks         uint64
	generation    uint32
	arrivals      [core.NumChannels]uint32
	pending       [core.NumChannels]bool
}

func newBoard(cfg *config.MockConfig, conv *config.ConversionConfig) *board {
	b := &board{
		cfg:           cfg,
		conv:          conv,
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		cyclesPerTick: uint32(conv.ClockHz * float64(core.TickMicros) / 1e6),
	}
	return b
}

// simTime is the simulated time since power-on.
func (b *board) simTime() time.Duration {
	return time.Duration(b.ticks) * core.TickMicros * time.Microsecond
}

// position returns the pen tip position at simulated time t: a circle in the
// XY plane around the configured center.
func (b *board) position(t time.Duration) config.Point {
	p := b.cfg.Center
	if b.cfg.Radius == 0 || b.cfg.PathPeriod <= 0 {
		return p
	}
	phase := 2 * math.Pi * float64(t%b.cfg.PathPeriod) / float64(b.cfg.PathPeriod)
	p.X += b.cfg.Radius * math.Cos(phase)
	p.Y += b.cfg.Radius * math.Sin(phase)
	return p
}

// delayCycles converts the distance between p and a receiver into counter cycles.
func delayCycles(p, receiver config.Point, conv *config.ConversionConfig) float64 {
	dx, dy, dz := p.X-receiver.X, p.Y-receiver.Y, p.Z-receiver.Z
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	return (dist/conv.SpeedOfSound + conv.Latency) * conv.ClockHz
}

// strokeActive reports whether the simulated operator holds the button.
func (b *board) strokeActive(t time.Duration) bool {
	if b.cfg.StrokePeriod <= 0 || b.cfg.StrokeDuration <= 0 {
		return false
	}
	return t%b.cfg.StrokePeriod < b.cfg.StrokeDuration
}

// schedule computes the echo arrival of a freshly emitted train on every receiver.
func (b *board) schedule() {
	p := b.position(b.simTime())
	for i := range b.pending {
		b.pending[i] = false
		if i >= len(b.cfg.Receivers) {
			continue
		}
		if b.cfg.DropRate > 0 && b.rng.Float64() < b.cfg.DropRate {
			continue
		}
		cycles := delayCycles(p, b.cfg.Receivers[i], b.conv)
		if b.cfg.Jitter > 0 {
			cycles += b.rng.NormFloat64() * b.cfg.Jitter
		}
		if cycles < 1 {
			cycles = 1
		}
		b.arrivals[i] = uint32(cycles)
		b.pending[i] = true
	}
}

// nextArrival returns the earliest pending receiver due by limit.
func (b *board) nextArrival(limit uint32) (int, bool) {
	best := -1
	for i := range b.pending {
		if !b.pending[i] || b.arrivals[i] > limit {
			continue
		}
		if best < 0 || b.arrivals[i] < b.arrivals[best] {
			best = i
		}
	}
	return best, best >= 0
}

// step advances the board by one dispatcher tick.
func (b *board) step() {
	b.button.pressed.Store(b.strokeActive(b.simTime()))

	if gen := b.counter.generation.Load(); gen != b.generation && b.emitter.on.Load() {
		b.generation = gen
		b.schedule()
	}

	prev := b.counter.elapsed.Load()
	next := prev + b.cyclesPerTick
	cur := prev
	for {
		ch, ok := b.nextArrival(next)
		if !ok {
			break
		}
		b.pending[ch] = false
		// Position the counter on the edge; a concurrent Reset wins.
		if !b.counter.elapsed.CompareAndSwap(cur, b.arrivals[ch]) {
			b.pending = [core.NumChannels]bool{}
			break
		}
		cur = b.arrivals[ch]
		b.pen.Capture(ch)
	}

	if b.counter.elapsed.CompareAndSwap(cur, next) {
		for wraps := next>>16 - prev>>16; wraps > 0; wraps-- {
			b.pen.Overflow()
		}
	}

	b.ticks++
	b.pen.Tick()
}
