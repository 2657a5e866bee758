package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the host application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Link        LinkConfig        `yaml:"link"`
	Conversion  ConversionConfig  `yaml:"conversion"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// LinkConfig contains the report request/response loop parameters.
type LinkConfig struct {
	RequestInterval time.Duration `yaml:"request_interval"` // How often a report is requested
	BufferSize      int           `yaml:"buffer_size"`      // Reports channel capacity
}

// ConversionConfig converts raw delay counts into time of flight and range.
type ConversionConfig struct {
	ClockHz      float64 `yaml:"clock_hz"`       // Delay counter frequency
	SpeedOfSound float64 `yaml:"speed_of_sound"` // m/s
	Latency      float64 `yaml:"latency"`        // Fixed transducer latency in seconds, subtracted from every delay
}

// MeasurementConfig contains host-side processing parameters.
type MeasurementConfig struct {
	WindowSeconds   float64 `yaml:"window_seconds"`    // Recorder history length
	AverageSamples  int     `yaml:"average_samples"`   // Number of samples to average (0 = disabled, default)
	MinStrokePoints int     `yaml:"min_stroke_points"` // Strokes shorter than this are dropped as bounces
}

// Point is a position in meters.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// MockConfig contains simulated pen configuration.
type MockConfig struct {
	Receivers      []Point       `yaml:"receivers"`       // One receiver per axis
	Center         Point         `yaml:"center"`          // Center of the simulated pen path
	Radius         float64       `yaml:"radius"`          // Radius of the circular pen path (m)
	PathPeriod     time.Duration `yaml:"path_period"`     // Time for one revolution
	TickPeriod     time.Duration `yaml:"tick_period"`     // Simulated dispatcher tick
	ReportInterval time.Duration `yaml:"report_interval"` // How often the simulated host requests a report
	DropRate       float64       `yaml:"drop_rate"`       // Probability a receiver misses a pulse
	Jitter         float64       `yaml:"jitter"`          // Delay noise, in counter cycles
	StrokePeriod   time.Duration `yaml:"stroke_period"`   // Time between button presses
	StrokeDuration time.Duration `yaml:"stroke_duration"` // How long the button stays pressed
	Seed           int64         `yaml:"seed"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 38400,
		},
		Link: LinkConfig{
			RequestInterval: 20 * time.Millisecond,
			BufferSize:      100,
		},
		Conversion: ConversionConfig{
			ClockHz:      16000000,
			SpeedOfSound: 343,
			Latency:      0,
		},
		Measurement: MeasurementConfig{
			WindowSeconds:   10,
			AverageSamples:  0, // The pen already filters
			MinStrokePoints: 3,
		},
		Mock: MockConfig{
			Receivers: []Point{
				{X: 0.5, Y: 0, Z: 0},
				{X: 0, Y: 0.5, Z: 0},
				{X: 0, Y: 0, Z: 0.5},
			},
			Center:         Point{X: 0.2, Y: 0.2, Z: 0.2},
			Radius:         0.05,
			PathPeriod:     5 * time.Second,
			TickPeriod:     500 * time.Microsecond,
			ReportInterval: 20 * time.Millisecond,
			DropRate:       0.02,
			Jitter:         40,
			StrokePeriod:   4 * time.Second,
			StrokeDuration: 2 * time.Second,
			Seed:           1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Link.RequestInterval == 0 {
		c.Link.RequestInterval = def.Link.RequestInterval
	}
	if c.Link.BufferSize == 0 {
		c.Link.BufferSize = def.Link.BufferSize
	}

	if c.Conversion.ClockHz == 0 {
		c.Conversion.ClockHz = def.Conversion.ClockHz
	}
	if c.Conversion.SpeedOfSound == 0 {
		c.Conversion.SpeedOfSound = def.Conversion.SpeedOfSound
	}

	if c.Measurement.WindowSeconds == 0 {
		c.Measurement.WindowSeconds = def.Measurement.WindowSeconds
	}

	if len(c.Mock.Receivers) == 0 {
		c.Mock.Receivers = def.Mock.Receivers
	}
	if c.Mock.PathPeriod == 0 {
		c.Mock.PathPeriod = def.Mock.PathPeriod
	}
	if c.Mock.TickPeriod == 0 {
		c.Mock.TickPeriod = def.Mock.TickPeriod
	}
	if c.Mock.ReportInterval == 0 {
		c.Mock.ReportInterval = def.Mock.ReportInterval
	}
	if c.Mock.StrokePeriod == 0 {
		c.Mock.StrokePeriod = def.Mock.StrokePeriod
	}
}
