//go:build tinygo && atsamd21

package main

import (
	"device/sam"
	"runtime/interrupt"
)

// delayCounter is TC3 running free at COUNTER_CLOCK_HZ in 16-bit mode.
type delayCounter struct{}

func (delayCounter) Count() uint16 {
	sam.TC3_COUNT16.READREQ.Set(sam.TC_COUNT16_READREQ_RREQ | 0x10)
	waitTC(sam.TC3_COUNT16)
	return uint16(sam.TC3_COUNT16.COUNT.Get())
}

func (delayCounter) Reset() {
	sam.TC3_COUNT16.COUNT.Set(0)
	waitTC(sam.TC3_COUNT16)
}

// configureTimers starts TC3 as the delay counter with its overflow interrupt
// and TC4 as the dispatcher tick.
func configureTimers() {
	sam.PM.APBCMASK.SetBits(sam.PM_APBCMASK_TC3_ | sam.PM_APBCMASK_TC4_)

	// GCLK4 = DFLL48M / COUNTER_CLOCK_DIV.
	sam.GCLK.GENDIV.Set((4 << sam.GCLK_GENDIV_ID_Pos) | (COUNTER_CLOCK_DIV << sam.GCLK_GENDIV_DIV_Pos))
	waitGCLK()
	sam.GCLK.GENCTRL.Set((4 << sam.GCLK_GENCTRL_ID_Pos) |
		(sam.GCLK_GENCTRL_SRC_DFLL48M << sam.GCLK_GENCTRL_SRC_Pos) |
		sam.GCLK_GENCTRL_GENEN)
	waitGCLK()
	for _, id := range []uint16{sam.GCLK_CLKCTRL_ID_TCC2_TC3, sam.GCLK_CLKCTRL_ID_TC4_TC5} {
		sam.GCLK.CLKCTRL.Set((id << sam.GCLK_CLKCTRL_ID_Pos) |
			(sam.GCLK_CLKCTRL_GEN_GCLK4 << sam.GCLK_CLKCTRL_GEN_Pos) |
			sam.GCLK_CLKCTRL_CLKEN)
		waitGCLK()
	}

	counter := sam.TC3_COUNT16
	counter.CTRLA.Set((sam.TC_COUNT16_CTRLA_MODE_COUNT16 << sam.TC_COUNT16_CTRLA_MODE_Pos) |
		(sam.TC_COUNT16_CTRLA_PRESCALER_DIV1 << sam.TC_COUNT16_CTRLA_PRESCALER_Pos))
	waitTC(counter)
	counter.INTENSET.Set(sam.TC_COUNT16_INTENSET_OVF)
	overflow := interrupt.New(sam.IRQ_TC3, handleOverflow)
	overflow.SetPriority(0x40)
	overflow.Enable()

	tick := sam.TC4_COUNT16
	tick.CTRLA.Set((sam.TC_COUNT16_CTRLA_MODE_COUNT16 << sam.TC_COUNT16_CTRLA_MODE_Pos) |
		(sam.TC_COUNT16_CTRLA_WAVEGEN_MFRQ << sam.TC_COUNT16_CTRLA_WAVEGEN_Pos) |
		(sam.TC_COUNT16_CTRLA_PRESCALER_DIV1 << sam.TC_COUNT16_CTRLA_PRESCALER_Pos))
	waitTC(tick)
	tick.CC[0].Set(TICK_COMPARE - 1)
	waitTC(tick)
	tick.INTENSET.Set(sam.TC_COUNT16_INTENSET_OVF)
	dispatch := interrupt.New(sam.IRQ_TC4, handleTick)
	dispatch.SetPriority(0x80)
	dispatch.Enable()

	counter.CTRLA.SetBits(sam.TC_COUNT16_CTRLA_ENABLE)
	waitTC(counter)
	tick.CTRLA.SetBits(sam.TC_COUNT16_CTRLA_ENABLE)
	waitTC(tick)
}

func handleOverflow(interrupt.Interrupt) {
	sam.TC3_COUNT16.INTFLAG.Set(sam.TC_COUNT16_INTFLAG_OVF)
	pen.Overflow()
}

func handleTick(interrupt.Interrupt) {
	sam.TC4_COUNT16.INTFLAG.Set(sam.TC_COUNT16_INTFLAG_OVF)
	pen.Tick()
}

func waitGCLK() {
	for sam.GCLK.STATUS.HasBits(sam.GCLK_STATUS_SYNCBUSY) {
	}
}

func waitTC(tc *sam.TC_COUNT16_Type) {
	for tc.STATUS.HasBits(sam.TC_COUNT16_STATUS_SYNCBUSY) {
	}
}
