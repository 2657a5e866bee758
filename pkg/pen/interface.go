package pen

// Device defines the interface for pen devices (real or simulated).
type Device interface {
	Connect() error
	Close() error
	Reports() <-chan RawReport
	Request() error
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
