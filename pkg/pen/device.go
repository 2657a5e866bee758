package pen

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/usonicpen/pkg/core"
)

const (
	// DefaultBaudRate is the UART rate of the pen firmware.
	DefaultBaudRate = 38400
	// DefaultBufferSize is the default size for the reports channel buffer.
	DefaultBufferSize = 100

	// bannerLine is printed once by the firmware at boot.
	bannerLine = "running..."
)

// RawReport is one report line received from the pen.
type RawReport struct {
	Timestamp time.Time
	Button    core.ButtonState
	Delays    [core.NumChannels]uint32 // Stabilized delays in counter cycles
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the pen over a serial port. Once
// connected it requests a report every interval and parses the replies.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	interval time.Duration

	conn      io.ReadWriteCloser
	reports   chan RawReport
	mu        sync.RWMutex
	writeMu   sync.Mutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	closed    bool
}

// New creates a new Serial device. A zero interval disables automatic
// requests; Request can still be called by hand.
func New(port string, baudRate int, bufSize int, interval time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		interval: interval,
		reports:  make(chan RawReport, bufSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port and starts the request/response loop.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}
	if d.closed {
		return fmt.Errorf("device closed")
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.attach(port)
	return nil
}

// attach starts the reader and requester on an open port. Caller holds mu.
func (d *Serial) attach(conn io.ReadWriteCloser) {
	d.conn = conn
	d.connected = true

	d.wg.Add(1)
	go d.readReports()

	if d.interval > 0 {
		d.wg.Add(1)
		go d.requestReports()
	}
}

// Close closes the connection and stops reading reports.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
	}

	d.wg.Wait()
	d.conn = nil
	d.connected = false
	d.closed = true

	close(d.reports)

	return nil
}

// Reports returns the channel for reading reports.
func (d *Serial) Reports() <-chan RawReport {
	return d.reports
}

// Request asks the pen for one report.
func (d *Serial) Request() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return fmt.Errorf("not connected")
	}

	return d.sendRequest()
}

func (d *Serial) sendRequest() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if _, err := d.conn.Write([]byte{core.RequestByte}); err != nil {
		return fmt.Errorf("failed to send report request: %w", err)
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// requestReports sends a request every interval until the device is closed.
func (d *Serial) requestReports() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.sendRequest(); err != nil {
				log.Printf("Error requesting report: %v", err)
			}
		}
	}
}

// readReports reads lines from the serial port and parses them into RawReport.
func (d *Serial) readReports() {
	defer d.wg.Done()

	scanReports(d.ctx, d.conn, d.reports)
}

// scanReports parses report lines from r until it fails or hits EOF. Parsed
// reports are dropped rather than blocking when out is full.
func scanReports(ctx context.Context, r io.Reader, out chan<- RawReport) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == bannerLine {
			log.Printf("Pen firmware started")
			continue
		}

		report, err := parseLine(line)
		if err != nil {
			log.Printf("Failed to parse line '%s': %v", line, err)
			continue
		}

		if ctx.Err() != nil {
			continue
		}
		select {
		case out <- report:
		default:
			log.Printf("Reports channel full, dropping report")
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("Error reading from serial port: %v", err)
	}
}

// parseLine parses a report line from the pen into a RawReport.
// Format: button,delayX, delayY, delayZ
// Example: 3,19230, 18877, 18450
func parseLine(line string) (RawReport, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 1+core.NumChannels {
		return RawReport{}, fmt.Errorf("invalid line format: expected %d comma-separated values, got %d", 1+core.NumChannels, len(parts))
	}

	state, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 8)
	if err != nil {
		return RawReport{}, fmt.Errorf("invalid button state: %w", err)
	}
	button := core.ButtonState(state)
	if !button.Valid() {
		return RawReport{}, fmt.Errorf("button state out of range: %d", state)
	}

	report := RawReport{
		Timestamp: time.Now(),
		Button:    button,
	}
	for i := range report.Delays {
		delay, err := strconv.ParseUint(strings.TrimSpace(parts[1+i]), 10, 32)
		if err != nil {
			return RawReport{}, fmt.Errorf("invalid delay %d: %w", i, err)
		}
		report.Delays[i] = uint32(delay)
	}

	return report, nil
}
