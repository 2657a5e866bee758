package pen

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/itohio/usonicpen/pkg/config"
	"github.com/itohio/usonicpen/pkg/core"
)

// Mock runs the real firmware core against a simulated board, for development
// without hardware. Reports travel through the same line format as the
// serial link.
type Mock struct {
	cfg  *config.MockConfig
	conv *config.ConversionConfig

	reports   chan RawReport
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	closed    bool

	board  *board
	pen    *core.Core
	lines  *io.PipeWriter
	loops  sync.WaitGroup
	reader sync.WaitGroup
}

// NewMock creates a new simulated device instance.
func NewMock(cfg *config.Config) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	bufSize := cfg.Link.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return &Mock{
		cfg:     &cfg.Mock,
		conv:    &cfg.Conversion,
		reports: make(chan RawReport, bufSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect powers up the simulated pen.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	if m.closed {
		return fmt.Errorf("device closed")
	}
	if m.cfg.TickPeriod <= 0 {
		return fmt.Errorf("invalid tick period: %v", m.cfg.TickPeriod)
	}

	r, w := io.Pipe()
	m.lines = w
	m.board = newBoard(m.cfg, m.conv)
	m.pen = core.New(core.Hardware{
		Counter: &m.board.counter,
		Emitter: &m.board.emitter,
		Button:  &m.board.button,
		Out:     w,
	})
	m.board.pen = m.pen
	m.connected = true

	m.reader.Add(1)
	go func() {
		defer m.reader.Done()
		// Keeps draining until the pipe closes so the core never blocks on a write.
		scanReports(m.ctx, r, m.reports)
	}()

	m.loops.Add(2)
	go m.runBoard()
	go m.runMainLoop()

	if m.cfg.ReportInterval > 0 {
		m.loops.Add(1)
		go m.runRequests()
	}

	return nil
}

// Close stops the simulated pen and closes the reports channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.loops.Wait()
	m.lines.Close()
	m.reader.Wait()

	m.connected = false
	m.closed = true
	close(m.reports)

	return nil
}

// Reports returns the channel for reading reports.
func (m *Mock) Reports() <-chan RawReport {
	return m.reports
}

// Request asks the simulated pen for one report.
func (m *Mock) Request() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}

	m.pen.Receive(core.RequestByte)
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Trains returns how many pulse trains the simulated pen has emitted.
func (m *Mock) Trains() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.board == nil {
		return 0
	}
	return m.board.emitter.trains.Load()
}

// runBoard plays the hardware side: one board step per tick period.
func (m *Mock) runBoard() {
	defer m.loops.Done()

	ticker := time.NewTicker(m.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.board.step()
		}
	}
}

// runMainLoop polls the core a few times per tick, like the firmware's
// free-running main loop.
func (m *Mock) runMainLoop() {
	defer m.loops.Done()

	pause := m.cfg.TickPeriod / 4
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
			m.pen.Poll()
			time.Sleep(pause)
		}
	}
}

// runRequests plays the host: one report request per report interval.
func (m *Mock) runRequests() {
	defer m.loops.Done()

	ticker := time.NewTicker(m.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.pen.Receive(core.RequestByte)
		}
	}
}
