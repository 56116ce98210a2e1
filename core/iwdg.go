package core

import "stm32tx/mmio"

const (
	iwdgKR    = 0
	iwdgPR    = 1
	iwdgRLR   = 2
	iwdgSR    = 3
	iwdgWords = 4

	KeyStart  = 0xCCCC
	KeyFeed   = 0xAAAA
	KeyUnlock = 0x5555

	iwdgReloadMask = 0xFFF
	iwdgSRBusy     = 0b11 // PVU | RVU
)

// Watchdog drives the independent watchdog. Once started it cannot be stopped; a missed
// feed resets the chip.
type Watchdog struct {
	kr  mmio.Reg
	pr  mmio.Reg
	rlr mmio.Reg
	sr  mmio.Reg
}

func NewWatchdog(bus mmio.Bus, base uintptr) *Watchdog {
	blk := mmio.NewBlock(bus, base, iwdgWords)
	return &Watchdog{
		kr:  blk.Reg(iwdgKR),
		pr:  blk.Reg(iwdgPR),
		rlr: blk.Reg(iwdgRLR),
		sr:  blk.Reg(iwdgSR),
	}
}

func (w *Watchdog) setKey(key uint32) {
	w.kr.Set(key)
	w.kr.Barrier()
}

// Start starts the counter; it also starts LSI.
func (w *Watchdog) Start() {
	w.setKey(KeyStart)
	RecordTrace(EvtWatchdogStart, w.kr.Addr(), KeyStart)
}

// Feed reloads the counter.
func (w *Watchdog) Feed() {
	w.setKey(KeyFeed)
}

// Configure sets the prescaler (0: /4 .. 6: /256) and reload value, waits for both to
// reach the LSI domain and feeds once.
func (w *Watchdog) Configure(prescaler uint8, reload uint16) {
	w.setKey(KeyUnlock)
	w.pr.Set(uint32(prescaler & 0x7))
	w.rlr.Set(uint32(reload) & iwdgReloadMask)
	w.rlr.Barrier()
	Wait(func() bool { return w.sr.Get()&iwdgSRBusy == 0 })
	w.Feed()
}
