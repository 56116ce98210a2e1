package core

import "stm32tx/mmio"

const (
	timCR1   = 0
	timDIER  = 3
	timSR    = 4
	timPSC   = 10
	timARR   = 11
	timWords = 12

	timCEN = 0
	timUIE = 0
	timUIF = 0
)

// BasicTimer drives TIM6 or TIM7 as a periodic update-interrupt source.
type BasicTimer struct {
	cr1  mmio.Reg
	dier mmio.Reg
	sr   mmio.Reg
	psc  mmio.Reg
	arr  mmio.Reg
}

func NewBasicTimer(bus mmio.Bus, base uintptr) *BasicTimer {
	blk := mmio.NewBlock(bus, base, timWords)
	return &BasicTimer{
		cr1:  blk.Reg(timCR1),
		dier: blk.Reg(timDIER),
		sr:   blk.Reg(timSR),
		psc:  blk.Reg(timPSC),
		arr:  blk.Reg(timARR),
	}
}

func (t *BasicTimer) EnableUpdateInterrupt() { t.dier.SetBit(timUIE) }
func (t *BasicTimer) SetPrescaler(v uint16) { t.psc.Set(uint32(v)) }
func (t *BasicTimer) SetAutoReload(v uint16) { t.arr.Set(uint32(v)) }
func (t *BasicTimer) Enable() { t.cr1.SetBit(timCEN) }
func (t *BasicTimer) IsUpdatePending() bool { return t.sr.HasBits(1 << timUIF) }

// ClearStatus clears UIF. Call it last in the handler; the barrier keeps the interrupt
// from re-entering on a stale flag.
func (t *BasicTimer) ClearStatus() {
	t.sr.Set(0)
	t.sr.Barrier()
}

// TimerTicks returns prescaler and reload values for a rate of hz from a timer clock of
// clk. The timer clock is twice PCLK1 whenever the APB1 prescaler divides.
func TimerTicks(clk, hz uint32) (psc, arr uint16) {
	if hz == 0 {
		return 0xFFFF, 0xFFFF
	}
	ticks := clk / hz
	if ticks == 0 {
		ticks = 1
	}
	div := ticks/0x10000 + 1
	return uint16(div - 1), uint16(ticks/div - 1)
}
