//go:build tinygo && atsamd21

package main

import "machine"

const (
	// Receiver inputs, rising edge, one per axis.
	PIN_RX_X = machine.D1
	PIN_RX_Y = machine.D2
	PIN_RX_Z = machine.D3

	// Brush button, active low with pull-up.
	PIN_BUTTON = machine.D4

	// 40 kHz transmitter drive. PA09, TCC0 WO[1].
	PIN_TRANSMIT = machine.D5

	// Pulse train carrier: 25 µs period = 40 kHz.
	CARRIER_PERIOD_NS = 25000

	// Delay counter clock. DFLL48M divided by 3 gives the 16 MHz the
	// noise floor and the host conversion are calibrated for.
	COUNTER_CLOCK_DIV = 3
	COUNTER_CLOCK_HZ  = 16000000

	// Dispatcher tick: 0.5 ms at the counter clock.
	TICK_COMPARE = COUNTER_CLOCK_HZ / 1000000 * 500

	// Serial link to the host.
	UART_BAUD_RATE = 38400
)
