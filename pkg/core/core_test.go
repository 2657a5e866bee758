package core

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r := newRig()

	assert.Equal(t, NoPush, r.core.Button())
	assert.True(t, r.core.TimedOut(), "first pass must start a cycle")
	assert.Equal(t, [NumChannels]uint32{}, r.core.Stabilized())
	assert.Equal(t, uint32(IdleByte), r.core.mailbox.Load())
	for ch := range NumChannels {
		assert.False(t, r.core.Armed(ch))
		assert.False(t, r.core.Ready(ch))
	}
	for i, want := range timerReload {
		assert.Equal(t, want, r.core.timers[i].Load())
	}
}

func TestCore_FirstPollStartsCycle(t *testing.T) {
	r := newRig()
	r.core.Poll()

	assert.False(t, r.core.TimedOut())
	assert.False(t, r.core.GotPoint())
	assert.True(t, r.emitter.on.Load())
	assert.Equal(t, int32(1), r.counter.resets.Load())
	for ch := range NumChannels {
		assert.True(t, r.core.Armed(ch))
		assert.False(t, r.core.Ready(ch))
	}
}

func TestCore_TrainLength(t *testing.T) {
	r := newRig()
	r.core.Poll()

	r.ticks(TrainLengthTicks - 1)
	r.core.Poll()
	assert.True(t, r.emitter.on.Load())

	r.ticks(1)
	r.core.Poll()
	assert.False(t, r.emitter.on.Load())
	assert.Equal(t, int32(1), r.emitter.enables.Load())
}

func TestCore_TickFloorsAtZero(t *testing.T) {
	r := newRig()
	r.ticks(3 * TrainPeriodTicks)
	for i := range r.core.timers {
		assert.Equal(t, int32(0), r.core.timers[i].Load())
	}
}

func TestCore_CaptureFirstEdgeOnly(t *testing.T) {
	r := newRig()

	r.edge(0, 700)
	assert.False(t, r.core.Ready(0), "edge before arming must be ignored")

	r.core.Poll()
	r.edge(0, 700)
	assert.True(t, r.core.Ready(0))
	assert.False(t, r.core.Armed(0))

	r.edge(0, 900)
	assert.Equal(t, uint32(700), r.core.channels[0].raw.Load(), "late edge overwrote the capture")

	r.core.Capture(-1)
	r.core.Capture(NumChannels)
}

func TestCore_ExtendedTimebase(t *testing.T) {
	r := newRig()
	r.core.Poll()

	r.core.Overflow()
	r.core.Overflow()
	r.edge(1, 10)
	assert.Equal(t, uint32(10+2*OverflowStep), r.core.channels[1].raw.Load())

	r.ticks(TrainPeriodTicks)
	r.core.Poll()
	r.edge(1, 10)
	assert.Equal(t, uint32(10), r.core.channels[1].raw.Load(), "timebase not reset on new cycle")
}

func TestCore_EndToEnd(t *testing.T) {
	r := newRig()
	r.core.Poll()

	r.edge(0, 500)
	r.edge(1, 520)
	r.edge(2, 510)
	for ch := range NumChannels {
		require.True(t, r.core.Ready(ch))
	}

	r.core.Poll()

	assert.True(t, r.core.GotPoint())
	median, mean := r.core.filter.Cursors()
	assert.Equal(t, 1, median)
	assert.Equal(t, 1, mean)
	for ch, want := range []uint32{500, 520, 510} {
		assert.False(t, r.core.Ready(ch))
		assert.Equal(t, want, r.core.filter.median[ch][0])
		// One sample against fourteen startup zeros: the median is still zero.
		assert.Equal(t, uint32(0), r.core.filter.mean[ch][0])
	}
	assert.Equal(t, [NumChannels]uint32{0, 0, 0}, r.core.Stabilized())

	r.ticks(TrainPeriodTicks)
	r.core.Poll()

	// The median turns over after MedianLength/2+1 samples, the mean after
	// MeanLength further medians.
	for range MedianLength/2 + MeanLength - 1 {
		r.cycle([NumChannels]uint16{500, 520, 510})
	}
	assert.Equal(t, [NumChannels]uint32{500, 520, 510}, r.core.Stabilized())

	r.core.Receive(RequestByte)
	r.core.Poll()
	assert.Equal(t, "1,500, 520, 510\r\n", r.out.String())
	assert.Equal(t, uint32(IdleByte), r.core.mailbox.Load())
}

func TestCore_StabilizedRampsUp(t *testing.T) {
	r := newRig()
	r.core.Poll()

	var history [][NumChannels]uint32
	for range MedianLength/2 + 3 {
		r.cycle([NumChannels]uint16{3500, 3500, 3500})
		history = append(history, r.core.Stabilized())
	}

	for i := range MedianLength / 2 {
		assert.Equal(t, uint32(0), history[i][0], "cycle %d", i)
	}
	// From the 8th cycle on every median is 3500 and the mean grows by 100.
	assert.Equal(t, uint32(100), history[MedianLength/2][0])
	assert.Equal(t, uint32(200), history[MedianLength/2+1][0])
	assert.Equal(t, uint32(300), history[MedianLength/2+2][0])
}

func TestCore_Timeout(t *testing.T) {
	r := newRig()
	r.core.Poll()
	for range 10 {
		r.cycle([NumChannels]uint16{1200, 1300, 1400})
	}
	prior := r.core.Stabilized()
	priorMedian, priorMean := r.core.filter.Cursors()

	r.edge(0, 1250)
	r.edge(1, 1350)
	r.core.Poll()
	assert.False(t, r.core.GotPoint())

	r.ticks(CaptureTimeoutTicks)
	r.core.Poll()

	assert.True(t, r.core.TimedOut())
	for ch := range NumChannels {
		assert.False(t, r.core.Ready(ch))
	}
	assert.Equal(t, prior, r.core.Stabilized())
	median, mean := r.core.filter.Cursors()
	assert.Equal(t, priorMedian, median)
	assert.Equal(t, priorMean, mean)

	// The timeout overrides the period timer on the next pass.
	r.core.Poll()
	assert.False(t, r.core.TimedOut())
	for ch := range NumChannels {
		assert.True(t, r.core.Armed(ch))
	}

	// A late edge from the lost train lands on a fresh cycle only once.
	r.edge(2, 1450)
	assert.True(t, r.core.Ready(2))
}

func TestCore_NoTimeoutAfterPoint(t *testing.T) {
	r := newRig()
	r.core.Poll()
	r.edge(0, 600)
	r.edge(1, 600)
	r.edge(2, 600)
	r.core.Poll()

	r.ticks(CaptureTimeoutTicks)
	r.core.Poll()
	assert.False(t, r.core.TimedOut())
}

func TestCore_BelowNoiseFloor(t *testing.T) {
	r := newRig()
	r.core.Poll()
	for range MedianLength/2 + 1 {
		r.cycle([NumChannels]uint16{4000, 4000, 4000})
	}
	prior := r.core.Stabilized()
	median, _ := r.core.filter.Cursors()
	slot := r.core.filter.median[1][median]

	r.edge(0, 4000)
	r.edge(1, NoiseFloor)
	r.edge(2, 4000)
	r.core.Poll()

	assert.False(t, r.core.Ready(1), "discarded sample must still retire the channel")
	assert.Equal(t, prior[1], r.core.Stabilized()[1])
	assert.Equal(t, slot, r.core.filter.median[1][median], "discarded sample entered the window")
	assert.NotEqual(t, prior[0], r.core.Stabilized()[0])

	next, _ := r.core.filter.Cursors()
	assert.Equal(t, (median+1)%MedianLength, next)
}

func TestCore_ReportIdempotent(t *testing.T) {
	r := newRig()
	r.core.Poll()
	for range 12 {
		r.cycle([NumChannels]uint16{2222, 3333, 4444})
	}

	r.core.Receive(RequestByte)
	r.core.Poll()
	first := r.out.String()
	r.out.Reset()

	r.core.Receive(RequestByte)
	r.core.Poll()
	assert.Equal(t, first, r.out.String())
	assert.Regexp(t, `^1,\d+, \d+, \d+\r\n$`, first)
}

func TestCore_ReportButtonState(t *testing.T) {
	r := newRig()
	r.core.Poll()
	r.pin.press(true)
	r.ticks(ButtonTicks)
	r.core.Poll()
	r.ticks(ButtonTicks)
	r.core.Poll()
	require.Equal(t, Pushed, r.core.Button())

	r.core.Receive(RequestByte)
	r.core.Poll()
	assert.Equal(t, "3,0, 0, 0\r\n", r.out.String())
}

func TestCore_Mailbox(t *testing.T) {
	tests := []struct {
		name     string
		received []byte
		want     string
	}{
		{"no request", nil, ""},
		{"request", []byte{RequestByte}, "1,0, 0, 0\r\n"},
		{"unexpected byte", []byte{'x'}, ""},
		{"overwritten before service", []byte{RequestByte, 'q'}, ""},
		{"second request collapses", []byte{RequestByte, RequestByte}, "1,0, 0, 0\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig()
			for _, b := range tt.received {
				r.core.Receive(b)
			}
			r.core.Poll()
			r.core.Poll()
			assert.Equal(t, tt.want, r.out.String())
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("uart busy") }

func TestCore_DroppedReport(t *testing.T) {
	c := New(Hardware{
		Counter: &fakeCounter{},
		Emitter: &fakeEmitter{},
		Button:  newFakePin(),
		Out:     failingWriter{},
	})
	c.Receive(RequestByte)
	c.Poll()
	assert.Equal(t, uint32(1), c.DroppedReports())
	assert.Equal(t, uint32(IdleByte), c.mailbox.Load())
}

func TestAppendReport(t *testing.T) {
	tests := []struct {
		name   string
		state  ButtonState
		delays [NumChannels]uint32
		want   string
	}{
		{"zero", NoPush, [NumChannels]uint32{}, "1,0, 0, 0\r\n"},
		{"typical", Pushed, [NumChannels]uint32{500, 520, 510}, "3,500, 520, 510\r\n"},
		{"max", MaybeNoPush, [NumChannels]uint32{4294967295, 4294967295, 4294967295}, "4,4294967295, 4294967295, 4294967295\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [maxReportLen]byte
			line := AppendReport(buf[:0], tt.state, tt.delays)
			assert.Equal(t, tt.want, string(line))
			assert.LessOrEqual(t, len(line), maxReportLen)
		})
	}
}

// TestCore_FlagExclusionUnderLoad drives the handlers from their own
// goroutines while the main loop runs, and checks armed/ready exclusion at
// every pass.
func TestCore_FlagExclusionUnderLoad(t *testing.T) {
	r := newRig()

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				r.core.Tick()
				r.core.Overflow()
			}
		}
	}()
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(7))
		for {
			select {
			case <-done:
				return
			default:
				r.counter.set(uint16(rng.Intn(60000)))
				r.core.Capture(rng.Intn(NumChannels))
			}
		}
	}()

	for i := range 20000 {
		if i%97 == 0 {
			r.core.Receive(RequestByte)
		}
		r.core.Poll()

		state := disableInterrupts()
		for ch := range NumChannels {
			armed, ready := r.core.Armed(ch), r.core.Ready(ch)
			if armed && ready {
				restoreInterrupts(state)
				close(done)
				wg.Wait()
				t.Fatalf("channel %d armed and ready at pass %d", ch, i)
			}
		}
		restoreInterrupts(state)
	}

	close(done)
	wg.Wait()
}
