package sample

import (
	"log"
	"math"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/usonicpen/pkg/config"
	"github.com/itohio/usonicpen/pkg/core"
	"github.com/itohio/usonicpen/pkg/pen"
)

// Sample is a report converted to physical units.
type Sample struct {
	Timestamp    time.Time
	Button       core.ButtonState
	Drawing      bool                            // Button held down
	TimeOfFlight [core.NumChannels]time.Duration // Per receiver, latency removed
	Range        [core.NumChannels]float32       // Per receiver, meters
	Valid        [core.NumChannels]bool          // False until the pen produced a filtered delay
}

// Converter is a function type that converts a RawReport channel to a Sample channel.
type Converter func(in <-chan pen.RawReport) <-chan Sample

// NewConverter creates a converter function that transforms RawReport to Sample.
func NewConverter(cfg *config.Config, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan pen.RawReport) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			for raw := range in {
				s := convertReport(raw, &cfg.Conversion)

				select {
				case out <- s:
				case <-time.After(time.Second):
					log.Printf("Converter output channel full, dropping sample")
				}
			}
		}()

		return out
	}
}

// convertReport converts a RawReport to Sample using the conversion parameters.
func convertReport(raw pen.RawReport, conv *config.ConversionConfig) Sample {
	s := Sample{
		Timestamp: raw.Timestamp,
		Button:    raw.Button,
		Drawing:   raw.Button.Held(),
	}

	for i, delay := range raw.Delays {
		if delay == 0 {
			continue
		}
		tof := timeOfFlight(delay, conv.ClockHz, conv.Latency)
		s.TimeOfFlight[i] = time.Duration(math.Round(float64(tof) * float64(time.Second)))
		s.Range[i] = tofToRange(tof, conv.SpeedOfSound)
		s.Valid[i] = true
	}

	return s
}

// timeOfFlight converts a delay in counter cycles to seconds, minus the fixed
// transducer latency. Never negative.
func timeOfFlight(delay uint32, clockHz, latency float64) float32 {
	if clockHz <= 0 {
		return 0
	}
	return math32.Max(0, float32(float64(delay)/clockHz-latency))
}

// tofToRange converts time of flight in seconds to meters.
func tofToRange(tof float32, speedOfSound float64) float32 {
	return tof * float32(speedOfSound)
}
