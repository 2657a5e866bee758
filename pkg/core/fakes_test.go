package core

import (
	"bytes"
	"sync"
	"sync/atomic"
)

type fakeCounter struct {
	value  atomic.Uint32
	resets atomic.Int32
}

func (f *fakeCounter) Count() uint16 { return uint16(f.value.Load()) }
func (f *fakeCounter) Reset() {
	f.value.Store(0)
	f.resets.Add(1)
}
func (f *fakeCounter) set(v uint16) { f.value.Store(uint32(v)) }

type fakeEmitter struct {
	on       atomic.Bool
	enables  atomic.Int32
	disables atomic.Int32
}

func (f *fakeEmitter) Enable() {
	f.on.Store(true)
	f.enables.Add(1)
}

func (f *fakeEmitter) Disable() {
	f.on.Store(false)
	f.disables.Add(1)
}

// fakePin is active-low: level false means the button is held down.
type fakePin struct {
	level atomic.Bool
}

func newFakePin() *fakePin {
	p := &fakePin{}
	p.level.Store(true)
	return p
}

func (p *fakePin) Get() bool       { return p.level.Load() }
func (p *fakePin) press(down bool) { p.level.Store(!down) }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

type rig struct {
	core    *Core
	counter *fakeCounter
	emitter *fakeEmitter
	pin     *fakePin
	out     *syncBuffer
}

func newRig() *rig {
	r := &rig{
		counter: &fakeCounter{},
		emitter: &fakeEmitter{},
		pin:     newFakePin(),
		out:     &syncBuffer{},
	}
	r.core = New(Hardware{
		Counter: r.counter,
		Emitter: r.emitter,
		Button:  r.pin,
		Out:     r.out,
	})
	return r
}

func (r *rig) ticks(n int) {
	for range n {
		r.core.Tick()
	}
}

// edge fires receiver ch with the counter showing count.
func (r *rig) edge(ch int, count uint16) {
	r.counter.set(count)
	r.core.Capture(ch)
}

// cycle runs one complete measurement cycle: it assumes the channels are
// armed, fires all three edges, lets the main loop filter them and then waits
// out the train period so the next Poll rearms.
func (r *rig) cycle(delays [NumChannels]uint16) {
	for ch, d := range delays {
		r.edge(ch, d)
	}
	r.core.Poll()
	r.ticks(TrainPeriodTicks)
	r.core.Poll()
}
