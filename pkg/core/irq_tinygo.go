//go:build tinygo

package core

import "runtime/interrupt"

type irqState = interrupt.State

// disableInterrupts disables interrupts and returns the previous state.
func disableInterrupts() irqState {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state.
func restoreInterrupts(state irqState) {
	interrupt.Restore(state)
}
