//go:build !tinygo

package core

import "sync"

// irqState is a placeholder for interrupt state on regular Go.
type irqState uintptr

// irqMu stands in for the interrupt mask on regular Go. Simulated handlers
// running on their own goroutines take it for their whole duration, the same
// way the main loop does for its critical sections.
var irqMu sync.Mutex

// disableInterrupts enters the critical section.
func disableInterrupts() irqState {
	irqMu.Lock()
	return 0
}

// restoreInterrupts leaves the critical section.
func restoreInterrupts(state irqState) {
	irqMu.Unlock()
}
