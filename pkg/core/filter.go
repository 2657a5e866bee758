package core

import "slices"

const (
	// MedianLength is the size of the sliding median window. Odd so the middle
	// rank needs no interpolation.
	MedianLength = 15
	// MeanLength is the size of the sliding mean window over median outputs.
	MeanLength = 35
	// NoiseFloor is the largest delay still considered faulty.
	NoiseFloor = 100
)

// Filter is the per-channel median -> mean cascade. All channels share one
// median cursor and one mean cursor: they are filtered in lockstep, once per
// completed measurement cycle.
type Filter struct {
	median    [NumChannels][MedianLength]uint32
	mean      [NumChannels][MeanLength]uint32
	medianPos int
	meanPos   int

	scratch [MedianLength]uint32
}

// Accepts reports whether a raw delay is above the noise floor.
func Accepts(delay uint32) bool {
	return delay > NoiseFloor
}

// Update pushes one sample for channel ch at the shared cursors and returns the
// new stabilized value: the truncated mean of the last MeanLength medians, each
// taken over the last MedianLength samples.
func (f *Filter) Update(ch int, sample uint32) uint32 {
	f.median[ch][f.medianPos] = sample

	f.scratch = f.median[ch]
	slices.Sort(f.scratch[:])
	f.mean[ch][f.meanPos] = f.scratch[MedianLength/2]

	var total uint64
	for _, v := range f.mean[ch] {
		total += uint64(v)
	}
	return uint32(total / MeanLength)
}

// Advance moves both shared cursors by one slot.
func (f *Filter) Advance() {
	f.medianPos++
	if f.medianPos == MedianLength {
		f.medianPos = 0
	}
	f.meanPos++
	if f.meanPos == MeanLength {
		f.meanPos = 0
	}
}

// Cursors returns the shared median and mean write positions.
func (f *Filter) Cursors() (median, mean int) {
	return f.medianPos, f.meanPos
}
