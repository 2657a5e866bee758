package main

import (
	"log"
	"sync/atomic"

	"github.com/itohio/usonicpen/pkg/config"
	"github.com/itohio/usonicpen/pkg/core"
	"github.com/itohio/usonicpen/pkg/pen"
	"github.com/itohio/usonicpen/pkg/recorder"
	"github.com/itohio/usonicpen/pkg/sample"
)

// measurementChain tracks the components of the measurement chain for graceful shutdown.
type measurementChain struct {
	device          pen.Device
	buttonGoroutine chan struct{} // Closed when the button watcher exits
	done            chan struct{} // Closed when the recorder goroutine exits
	completed       atomic.Int64
}

// strokes returns the number of completed strokes seen by the chain.
func (c *measurementChain) strokes() int64 {
	return c.completed.Load()
}

// startChain wires device reports through conversion and optional averaging
// into the recorder.
func startChain(cfg *config.Config, device pen.Device, rec *recorder.Recorder) *measurementChain {
	chain := &measurementChain{
		device:          device,
		buttonGoroutine: make(chan struct{}),
		done:            make(chan struct{}),
	}

	rec.ResetShutdown()
	rec.OnStroke(func(recorder.Stroke, []sample.Sample) {
		chain.completed.Add(1)
	})

	bufSize := cfg.Link.BufferSize
	reports := device.Reports()

	// Button transitions are logged from a tee so the converter sees every report.
	forConverter := make(chan pen.RawReport, bufSize)
	go func() {
		defer close(chain.buttonGoroutine)
		defer close(forConverter)
		last := core.ButtonState(0)
		for r := range reports {
			if r.Button != last {
				log.Printf("Button: %v", r.Button)
				last = r.Button
			}
			forConverter <- r
		}
	}()

	samples := sample.NewConverter(cfg, bufSize)(forConverter)
	if cfg.Measurement.AverageSamples > 0 {
		samples = sample.NewAveragingConverter(cfg.Measurement.AverageSamples, bufSize)(samples)
	}

	go func() {
		defer close(chain.done)
		rec.ProcessSamples(samples)
	}()

	return chain
}

// closeChain closes the device and waits for every stage to drain.
func closeChain(chain *measurementChain) {
	if chain == nil {
		return
	}

	if chain.device != nil {
		if err := chain.device.Close(); err != nil {
			log.Printf("Failed to close device: %v", err)
		}
	}

	<-chain.buttonGoroutine
	<-chain.done
}
