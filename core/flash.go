package core

import (
	"stm32tx/mmio"
	"stm32tx/x/mathx"
)

const (
	flashACR   = 0
	flashWords = 6

	acrLatencyMask = 0xF
	acrPRFTEN      = 8
	acrICEN        = 9
	acrDCEN        = 10

	// MaxFlashLatency is the largest LATENCY encoding on STM32F42x/43x.
	MaxFlashLatency = 15

	// HCLK per wait state at 2.7-3.6 V (RM0090 table 11).
	flashHzPerWaitState = 30_000_000
)

// Flash drives the flash access control register.
type Flash struct {
	acr mmio.Reg
}

func NewFlash(bus mmio.Bus, base uintptr) *Flash {
	blk := mmio.NewBlock(bus, base, flashWords)
	return &Flash{acr: blk.Reg(flashACR)}
}

// Latency returns the programmed number of wait states.
func (f *Flash) Latency() uint8 {
	return uint8(f.acr.Field(acrLatencyMask, 0))
}

// Configure sets the wait states and the cache and prefetch enables, then blocks until
// the latency reads back. The new latency takes effect only once it reads back.
func (f *Flash) Configure(latency uint8, icache, dcache, prefetch bool) {
	v := f.acr.Get()
	v = mmio.Replace(v, uint32(latency), acrLatencyMask, 0)
	v &^= 1<<acrPRFTEN | 1<<acrICEN | 1<<acrDCEN
	if prefetch {
		v |= 1 << acrPRFTEN
	}
	if icache {
		v |= 1 << acrICEN
	}
	if dcache {
		v |= 1 << acrDCEN
	}
	f.acr.Set(v)
	f.acr.Barrier()
	Wait(func() bool { return f.Latency() == latency&acrLatencyMask })
}

// RequiredLatency returns the minimum wait states for hclk at 2.7-3.6 V.
func RequiredLatency(hclk uint32) uint8 {
	if hclk == 0 {
		return 0
	}
	return uint8(mathx.CeilDiv(hclk, flashHzPerWaitState) - 1)
}
