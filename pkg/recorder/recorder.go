package recorder

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/itohio/usonicpen/pkg/config"
	"github.com/itohio/usonicpen/pkg/core"
	"github.com/itohio/usonicpen/pkg/sample"
)

var _ StrokeRecorder = (*Recorder)(nil)

// Stroke is a run of consecutive samples recorded while the button was held.
type Stroke struct {
	StartIndex int       // Start sample index in buffer (0 if the start slid out of the window)
	EndIndex   int       // End sample index in buffer (updated while the stroke is open)
	StartTime  time.Time // Timestamp of the first sample
	EndTime    time.Time // Timestamp of the latest sample
	Points     int       // Number of samples recorded into the stroke
	Open       bool      // Button still held
}

// Duration returns the time spanned by the stroke.
func (s Stroke) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// AxisStats describes the spread of one receiver's range over the window.
type AxisStats struct {
	Mean   float64 // meters
	StdDev float64 // meters, 0 with fewer than two samples
	N      int     // Number of valid samples
}

// Stats holds per-axis statistics.
type Stats [core.NumChannels]AxisStats

// StrokeRecorder keeps a time window of samples and splits it into strokes.
type StrokeRecorder interface {
	ProcessSamples(input <-chan sample.Sample)
	Samples() []sample.Sample                                              // Current samples buffer, oldest first
	Strokes() []Stroke                                                     // Strokes within the window, oldest first
	Stats() Stats                                                          // Range statistics over the window
	OnUpdate(func(samples []sample.Sample, strokes []Stroke, stats Stats)) // Called after every sample
	OnStroke(func(stroke Stroke, points []sample.Sample))                  // Called once per completed stroke
}

// Recorder implements StrokeRecorder.
// Removal from the buffer is based on timestamp (time window), not number of samples.
type Recorder struct {
	samples []sample.Sample
	strokes []Stroke

	mu sync.RWMutex

	callbacks       []func(samples []sample.Sample, strokes []Stroke, stats Stats)
	strokeCallbacks []func(stroke Stroke, points []sample.Sample)
	cbMu            sync.RWMutex

	windowDuration time.Duration
	minPoints      int

	// Set when the input channel closes; suppresses callbacks
	shutdown bool
}

// New creates a new Recorder.
func New(cfg *config.Config) *Recorder {
	minPoints := cfg.Measurement.MinStrokePoints
	if minPoints < 1 {
		minPoints = 1
	}
	return &Recorder{
		samples:        make([]sample.Sample, 0),
		strokes:        make([]Stroke, 0),
		windowDuration: time.Duration(cfg.Measurement.WindowSeconds * float64(time.Second)),
		minPoints:      minPoints,
	}
}

// ProcessSamples consumes samples until the input channel closes, then marks
// the recorder as shut down so no further callbacks fire.
func (r *Recorder) ProcessSamples(input <-chan sample.Sample) {
	for s := range input {
		r.processSample(s)
	}
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()
}

func (r *Recorder) processSample(s sample.Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.trimWindow(s.Timestamp)
	completed, ok := r.updateStrokes(s)

	var points []sample.Sample
	if ok {
		points = make([]sample.Sample, completed.EndIndex-completed.StartIndex+1)
		copy(points, r.samples[completed.StartIndex:completed.EndIndex+1])
	}
	shouldNotify := !r.shutdown
	r.mu.Unlock()

	if !shouldNotify {
		return
	}
	if ok {
		r.notifyStroke(completed, points)
	}
	r.notifyCallbacks()
}

// trimWindow drops samples older than the window and shifts stroke indices.
func (r *Recorder) trimWindow(now time.Time) {
	if r.windowDuration <= 0 {
		return
	}
	cutoff := now.Add(-r.windowDuration)
	cutoffIndex := 0
	for i, s := range r.samples {
		if s.Timestamp.After(cutoff) {
			cutoffIndex = i
			break
		}
	}
	if cutoffIndex == 0 {
		return
	}

	r.samples = r.samples[cutoffIndex:]

	valid := r.strokes[:0]
	for _, st := range r.strokes {
		st.StartIndex -= cutoffIndex
		st.EndIndex -= cutoffIndex
		if st.EndIndex < 0 {
			continue
		}
		if st.StartIndex < 0 {
			st.StartIndex = 0
		}
		valid = append(valid, st)
	}
	r.strokes = valid
}

// updateStrokes extends, opens or closes the last stroke for the newest
// sample. It returns the stroke that was just completed, if any.
func (r *Recorder) updateStrokes(s sample.Sample) (Stroke, bool) {
	idx := len(r.samples) - 1

	var last *Stroke
	if n := len(r.strokes); n > 0 && r.strokes[n-1].Open {
		last = &r.strokes[n-1]
	}

	if s.Drawing {
		if last != nil {
			last.EndIndex = idx
			last.EndTime = s.Timestamp
			last.Points++
			return Stroke{}, false
		}
		r.strokes = append(r.strokes, Stroke{
			StartIndex: idx,
			EndIndex:   idx,
			StartTime:  s.Timestamp,
			EndTime:    s.Timestamp,
			Points:     1,
			Open:       true,
		})
		return Stroke{}, false
	}

	if last == nil {
		return Stroke{}, false
	}

	last.Open = false
	if last.Points < r.minPoints {
		// Button bounce
		r.strokes = r.strokes[:len(r.strokes)-1]
		return Stroke{}, false
	}
	return *last, true
}

// Samples returns a copy of the current samples buffer.
func (r *Recorder) Samples() []sample.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]sample.Sample, len(r.samples))
	copy(result, r.samples)
	return result
}

// Strokes returns a copy of the current strokes.
func (r *Recorder) Strokes() []Stroke {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Stroke, len(r.strokes))
	copy(result, r.strokes)
	return result
}

// Stats returns per-axis range statistics over the window.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return computeStats(r.samples)
}

func computeStats(samples []sample.Sample) Stats {
	var stats Stats
	values := make([]float64, 0, len(samples))
	for axis := range stats {
		values = values[:0]
		for _, s := range samples {
			if s.Valid[axis] {
				values = append(values, float64(s.Range[axis]))
			}
		}
		stats[axis].N = len(values)
		switch len(values) {
		case 0:
		case 1:
			stats[axis].Mean = values[0]
		default:
			stats[axis].Mean, stats[axis].StdDev = stat.MeanStdDev(values, nil)
		}
	}
	return stats
}

// OnUpdate registers a callback invoked after each processed sample.
// The callback should copy data quickly and return as fast as possible.
func (r *Recorder) OnUpdate(callback func(samples []sample.Sample, strokes []Stroke, stats Stats)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// OnStroke registers a callback invoked once for every completed stroke that
// is long enough to keep.
func (r *Recorder) OnStroke(callback func(stroke Stroke, points []sample.Sample)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.strokeCallbacks = append(r.strokeCallbacks, callback)
}

// ResetShutdown allows callbacks again. Call before starting a new chain.
func (r *Recorder) ResetShutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = false
}

// Reset drops all samples and strokes.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = r.samples[:0]
	r.strokes = r.strokes[:0]
}

func (r *Recorder) notifyStroke(stroke Stroke, points []sample.Sample) {
	r.cbMu.RLock()
	callbacks := make([]func(Stroke, []sample.Sample), len(r.strokeCallbacks))
	copy(callbacks, r.strokeCallbacks)
	r.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(stroke, points)
		}
	}
}

// notifyCallbacks copies data under the read lock, then calls callbacks without it.
func (r *Recorder) notifyCallbacks() {
	r.mu.RLock()
	samplesCopy := make([]sample.Sample, len(r.samples))
	copy(samplesCopy, r.samples)
	strokesCopy := make([]Stroke, len(r.strokes))
	copy(strokesCopy, r.strokes)
	stats := computeStats(r.samples)
	r.mu.RUnlock()

	r.cbMu.RLock()
	callbacks := make([]func(samples []sample.Sample, strokes []Stroke, stats Stats), len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(samplesCopy, strokesCopy, stats)
		}
	}
}
