package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/usonicpen/pkg/config"
	"github.com/itohio/usonicpen/pkg/pen"
	"github.com/itohio/usonicpen/pkg/recorder"
	"github.com/itohio/usonicpen/pkg/sample"
)

func main() {
	var (
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Use simulated pen instead of serial port")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of samples to average (0 = disabled, overrides config)")
		durationFlag       = flag.Duration("duration", 0, "Stop after this long (0 = run until interrupted)")
		statsFlag          = flag.Duration("stats", time.Second, "Interval between range statistics log lines (0 = off)")
		listFlag           = flag.Bool("list", false, "List serial ports and exit")
		saveFlag           = flag.Bool("save-config", false, "Write the effective configuration to the config file and exit")
	)
	flag.Parse()

	if *listFlag {
		ports, err := pen.Ports()
		if err != nil {
			log.Fatalf("Failed to list ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *averageSamplesFlag >= 0 {
		cfg.Measurement.AverageSamples = *averageSamplesFlag
	}

	if *saveFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatalf("Failed to save configuration: %v", err)
		}
		fmt.Printf("Configuration written to %s\n", *configFlag)
		return
	}

	var device pen.Device
	if *mockFlag {
		device = pen.NewMock(cfg)
		fmt.Println("Using simulated pen")
	} else {
		device = pen.New(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Link.BufferSize, cfg.Link.RequestInterval)
	}

	if err := device.Connect(); err != nil {
		if *mockFlag {
			log.Fatalf("failed to connect to simulated pen: %v", err)
		}
		log.Fatalf("failed to connect to %s: %v", cfg.Serial.Port, err)
	}
	if !*mockFlag {
		fmt.Printf("Connected to serial port: %s\n", cfg.Serial.Port)
	}

	rec := recorder.New(cfg)
	rec.OnStroke(logStroke)
	if *statsFlag > 0 {
		rec.OnUpdate(throttledStats(*statsFlag))
	}

	chain := startChain(cfg, device, rec)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *durationFlag > 0 {
		deadline = time.After(*durationFlag)
	}

	select {
	case s := <-sig:
		log.Printf("Received %v, shutting down", s)
	case <-deadline:
	case <-chain.done:
		log.Printf("Device stopped sending reports")
	}

	closeChain(chain)
	fmt.Printf("Recorded %d strokes\n", chain.strokes())
}

// logStroke prints a completed stroke.
func logStroke(st recorder.Stroke, points []sample.Sample) {
	var end [3]float32
	if len(points) > 0 {
		end = points[len(points)-1].Range
	}
	log.Printf("Stroke: %d points over %v, ends at range %.3f, %.3f, %.3f m",
		st.Points, st.Duration().Round(time.Millisecond), end[0], end[1], end[2])
}

// throttledStats returns an update callback that logs range statistics at most
// once per interval.
func throttledStats(interval time.Duration) func([]sample.Sample, []recorder.Stroke, recorder.Stats) {
	var last time.Time
	return func(samples []sample.Sample, strokes []recorder.Stroke, stats recorder.Stats) {
		now := time.Now()
		if now.Sub(last) < interval {
			return
		}
		last = now

		drawing := len(strokes) > 0 && strokes[len(strokes)-1].Open
		log.Printf("Window: %d samples, drawing=%t, X %.4f±%.4f m, Y %.4f±%.4f m, Z %.4f±%.4f m",
			len(samples), drawing,
			stats[0].Mean, stats[0].StdDev,
			stats[1].Mean, stats[1].StdDev,
			stats[2].Mean, stats[2].StdDev)
	}
}
