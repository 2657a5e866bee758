//go:build tinygo && atsamd21

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"github.com/itohio/usonicpen/pkg/core"
)

var (
	uart = machine.UART0
	pen  *core.Core
)

// transmitter gates the 40 kHz carrier on a PWM channel.
type transmitter struct {
	pwm     *machine.TCC
	channel uint8
}

func (t *transmitter) Enable() {
	t.pwm.Set(t.channel, t.pwm.Top()/2)
}

func (t *transmitter) Disable() {
	t.pwm.Set(t.channel, 0)
}

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	PIN_BUTTON.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	pwm := machine.TCC0
	if err := pwm.Configure(machine.PWMConfig{Period: CARRIER_PERIOD_NS}); err != nil {
		halt("pwm", err)
	}
	ch, err := pwm.Channel(PIN_TRANSMIT)
	if err != nil {
		halt("pwm channel", err)
	}
	tx := &transmitter{pwm: pwm, channel: ch}
	tx.Disable()

	pen = core.New(core.Hardware{
		Counter: delayCounter{},
		Emitter: tx,
		Button:  PIN_BUTTON,
		Out:     uart,
	})

	rx := [core.NumChannels]machine.Pin{PIN_RX_X, PIN_RX_Y, PIN_RX_Z}
	for i, pin := range rx {
		pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		axis := i
		if err := pin.SetInterrupt(machine.PinRising, func(machine.Pin) {
			pen.Capture(axis)
		}); err != nil {
			println("rx interrupt:", err.Error())
		}
	}

	configureTimers()

	uart.Write([]byte("running...\n\r"))

	for {
		for uart.Buffered() > 0 {
			b, err := uart.ReadByte()
			if err != nil {
				break
			}
			pen.Receive(b)
		}
		pen.Poll()
	}
}

// halt reports a bring-up failure forever instead of measuring with a dead
// transmitter.
func halt(what string, err error) {
	for {
		println(what+":", err.Error())
		time.Sleep(time.Second)
	}
}
