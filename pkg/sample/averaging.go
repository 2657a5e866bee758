package sample

import "time"

// NewAveragingConverter creates a moving-average stage over already-converted
// Samples. Each input produces one output averaging the ranges of the last
// windowSize samples. Receivers only contribute while valid; the button state
// and timestamp of the most recent sample are kept.
func NewAveragingConverter(windowSize int, bufSize int) func(in <-chan Sample) <-chan Sample {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			buffer := make([]Sample, 0, windowSize)
			for s := range in {
				if len(buffer) == windowSize {
					copy(buffer, buffer[1:])
					buffer = buffer[:windowSize-1]
				}
				buffer = append(buffer, s)
				out <- averageSamples(buffer)
			}
		}()

		return out
	}
}

// averageSamples averages a slice of Samples.
func averageSamples(samples []Sample) Sample {
	if len(samples) == 0 {
		return Sample{}
	}

	avg := samples[len(samples)-1]
	for i := range avg.Range {
		var sumRange float32
		var sumTOF float64
		var n int
		for _, s := range samples {
			if !s.Valid[i] {
				continue
			}
			sumRange += s.Range[i]
			sumTOF += float64(s.TimeOfFlight[i])
			n++
		}
		if n == 0 {
			continue
		}
		avg.Range[i] = sumRange / float32(n)
		avg.TimeOfFlight[i] = time.Duration(sumTOF / float64(n))
		avg.Valid[i] = true
	}

	return avg
}
