package core

import "stm32tx/x/mathx"

// Rated maxima for STM32F42x/43x with over-drive off. Nothing here enables over-drive,
// so the 180 MHz range is out of reach.
const (
	MaxSYSCLK = 168_000_000
	MaxPCLK1  = 42_000_000
	MaxPCLK2  = 84_000_000

	vcoInMin  = 1_000_000
	vcoInMax  = 2_000_000
	vcoOutMin = 100_000_000
	vcoOutMax = 432_000_000
)

// maxSYSCLKForScale is the highest system clock each regulator scale supports without
// over-drive.
var maxSYSCLKForScale = [4]uint32{0, 168_000_000, 144_000_000, 120_000_000}

// ClockConfig describes the clock tree to bring up.
type ClockConfig struct {
	// PLL input oscillator.
	Source    Oscillator
	HSEBypass bool
	HSEFreq   uint32

	PLL PLLConfig

	// System clock after the switch.
	SystemClock ClockSource

	AHB  AHBPrescaler
	APB1 APBPrescaler
	APB2 APBPrescaler

	FlashLatency     uint8
	InstructionCache bool
	DataCache        bool
	Prefetch         bool

	VoltageScale uint8 // 1..3

	// EnableLSI starts the low-speed internal oscillator that clocks the watchdog.
	EnableLSI bool
}

// Frequencies are the clock rates a configuration produces.
type Frequencies struct {
	SYSCLK uint32
	HCLK   uint32
	PCLK1  uint32
	PCLK2  uint32
	PLL48  uint32 // USB/SDIO/RNG domain, 0 when the PLL is unused
}

// DefaultClockConfig returns 168 MHz from an 8 MHz bypassed HSE (the ST-LINK MCO on
// Nucleo-144 boards): AHB 168 MHz, APB1 42 MHz, APB2 84 MHz, 48 MHz domain exact.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		Source:           OscHSE,
		HSEBypass:        true,
		HSEFreq:          8_000_000,
		PLL:              PLLConfig{M: 4, N: 168, P: 2, Q: 7},
		SystemClock:      ClockPLL,
		AHB:              AHBDiv1,
		APB1:             APBDiv4,
		APB2:             APBDiv2,
		FlashLatency:     5,
		InstructionCache: true,
		DataCache:        true,
		Prefetch:         true,
		VoltageScale:     1,
		EnableLSI:        true,
	}
}

// applyDefaults fills in zero values that have no meaningful zero.
func (c *ClockConfig) applyDefaults() {
	if c.HSEFreq == 0 {
		c.HSEFreq = 8_000_000
	}
	if c.VoltageScale == 0 {
		c.VoltageScale = 1
	}
}

func (c *ClockConfig) pllInput() uint32 {
	if c.Source == OscHSE {
		return c.HSEFreq
	}
	return HSIFreq
}

func (c *ClockConfig) usesPLL() bool {
	return c.SystemClock == ClockPLL
}

func (c *ClockConfig) usesHSI() bool {
	return c.SystemClock == ClockHSI || (c.usesPLL() && c.Source == OscHSI)
}

func (c *ClockConfig) usesHSE() bool {
	return c.SystemClock == ClockHSE || (c.usesPLL() && c.Source == OscHSE)
}

// Frequencies computes the clock rates. The result is meaningless for a configuration
// that does not Validate.
func (c ClockConfig) Frequencies() Frequencies {
	c.applyDefaults()

	var f Frequencies
	switch c.SystemClock {
	case ClockHSI:
		f.SYSCLK = HSIFreq
	case ClockHSE:
		f.SYSCLK = c.HSEFreq
	case ClockPLL:
		if c.PLL.M == 0 || c.PLL.P == 0 {
			return f
		}
		vco := uint64(c.pllInput()) / uint64(c.PLL.M) * uint64(c.PLL.N)
		f.SYSCLK = uint32(vco / uint64(c.PLL.P))
		if c.PLL.Q != 0 {
			f.PLL48 = uint32(vco / uint64(c.PLL.Q))
		}
	}
	if d := c.AHB.Divisor(); d != 0 {
		f.HCLK = f.SYSCLK / d
	}
	if d := c.APB1.Divisor(); d != 0 {
		f.PCLK1 = f.HCLK / d
	}
	if d := c.APB2.Divisor(); d != 0 {
		f.PCLK2 = f.HCLK / d
	}
	return f
}

// Validate checks factor ranges and rated frequencies.
func (c ClockConfig) Validate() error {
	c.applyDefaults()

	switch c.SystemClock {
	case ClockHSI, ClockHSE, ClockPLL:
	default:
		return configErr("clock source", ErrClockSource)
	}
	if c.Source != OscHSI && c.Source != OscHSE {
		return configErr("pll source", ErrClockSource)
	}
	if c.VoltageScale > 3 {
		return configErr("voltage scale", ErrVoltageScale)
	}
	if c.AHB.Divisor() == 0 {
		return configErr("ahb prescaler", ErrInvalidPrescaler)
	}
	if c.APB1.Divisor() == 0 || c.APB2.Divisor() == 0 {
		return configErr("apb prescaler", ErrInvalidPrescaler)
	}
	if c.FlashLatency > MaxFlashLatency {
		return configErr("flash latency", ErrFlashLatency)
	}

	if c.usesPLL() {
		p := c.PLL
		if !mathx.Between(p.M, 2, 63) || !mathx.Between(p.N, 50, 432) ||
			!mathx.Between(p.Q, 2, 15) || (p.P != 2 && p.P != 4 && p.P != 6 && p.P != 8) {
			return configErr("pll factors", ErrInvalidPLL)
		}
		in := c.pllInput() / p.M
		if !mathx.Between(in, vcoInMin, vcoInMax) {
			return configErr("pll input", ErrVCOInput)
		}
		if out := uint64(in) * uint64(p.N); out < vcoOutMin || out > vcoOutMax {
			return configErr("pll vco", ErrVCOOutput)
		}
	}

	f := c.Frequencies()
	if f.SYSCLK > MaxSYSCLK || f.SYSCLK > maxSYSCLKForScale[c.VoltageScale] {
		return configErr("sysclk", ErrClockTooFast)
	}
	if f.PCLK1 > MaxPCLK1 || f.PCLK2 > MaxPCLK2 {
		return configErr("apb clock", ErrClockTooFast)
	}
	if c.FlashLatency < RequiredLatency(f.HCLK) {
		return configErr("flash latency", ErrFlashLatency)
	}
	return nil
}

// ClockTree sequences a clock configuration across RCC, PWR and FLASH.
type ClockTree struct {
	rcc   *RCC
	pwr   *Power
	flash *Flash
	freqs Frequencies
}

// NewClockTree returns a controller that assumes the reset clock (HSI, 16 MHz) until
// Bringup completes.
func NewClockTree(rcc *RCC, pwr *Power, flash *Flash) *ClockTree {
	return &ClockTree{
		rcc:   rcc,
		pwr:   pwr,
		flash: flash,
		freqs: Frequencies{SYSCLK: HSIFreq, HCLK: HSIFreq, PCLK1: HSIFreq, PCLK2: HSIFreq},
	}
}

// Frequencies returns the rates of the last completed bring-up.
func (c *ClockTree) Frequencies() Frequencies {
	return c.freqs
}

// SetSystemClock selects src and blocks until the status field reports it.
func (c *ClockTree) SetSystemClock(src ClockSource) {
	RecordTrace(EvtClockSwitch, c.rcc.cfgr.Addr(), uint32(src))
	c.rcc.SelectSystemClock(src)
	c.rcc.cfgr.Barrier()
	Wait(func() bool { return c.rcc.SystemClockStatus() == src })
}

// Bringup validates cfg and switches the clock tree to it. Every readiness wait is
// unbounded; a stuck oscillator hangs here until the watchdog resets the chip.
//
// Peripherals must not be enabled until Bringup returns.
func (c *ClockTree) Bringup(cfg ClockConfig) error {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	rcc := c.rcc

	// PWR registers are unreachable until their clock runs.
	rcc.EnablePower()
	RecordTrace(EvtPowerGate, rcc.apb1enr.Addr(), rcc.apb1enr.Get())

	// VOS only changes while the PLL is off.
	c.releasePLL()

	RecordTrace(EvtVoltageScale, c.pwr.cr.Addr(), uint32(cfg.VoltageScale))
	c.pwr.SetVoltageScale(cfg.VoltageScale)

	if cfg.EnableLSI {
		RecordTrace(EvtLSI, rcc.csr.Addr(), 1<<csrLSION)
		rcc.EnableLSI()
		rcc.csr.Barrier()
		Wait(rcc.IsLSIReady)
	}

	// Slowest bus ratios while the source changes, so no bus exceeds its rating in
	// between.
	RecordTrace(EvtPrescalerGuard, rcc.cfgr.Addr(), 0)
	rcc.SetPrescalers(AHBDiv512, APBDiv16, APBDiv16)

	if cfg.usesPLL() {
		c.configurePLL(cfg)
	} else if cfg.SystemClock == ClockHSE {
		c.startHSE(cfg.HSEBypass)
	} else {
		c.startHSI()
	}

	// Flash timing has to suit the faster of the old and new clocks at every instant:
	// more wait states go in before the switch, fewer only after it.
	current := c.flash.Latency()
	if cfg.FlashLatency >= current {
		c.programFlash(cfg)
	}

	c.SetSystemClock(cfg.SystemClock)

	if cfg.FlashLatency < current {
		c.programFlash(cfg)
	}

	RecordTrace(EvtPrescalerFinal, rcc.cfgr.Addr(), 0)
	rcc.SetPrescalers(cfg.AHB, cfg.APB1, cfg.APB2)
	rcc.cfgr.Barrier()
	Wait(func() bool {
		ahb, apb1, apb2 := rcc.Prescalers()
		return ahb == cfg.AHB && apb1 == cfg.APB1 && apb2 == cfg.APB2
	})

	if !cfg.usesHSI() {
		RecordTrace(EvtHSIOff, rcc.cr.Addr(), 0)
		rcc.DisableHSI()
	}

	c.freqs = cfg.Frequencies()
	DebugPrintln("[CLOCK] SYSCLK=" + utoa(c.freqs.SYSCLK) + " HCLK=" + utoa(c.freqs.HCLK) +
		" PCLK1=" + utoa(c.freqs.PCLK1) + " PCLK2=" + utoa(c.freqs.PCLK2))
	return nil
}

// releasePLL moves the system clock to HSI if the PLL drives it, then stops the PLL and
// waits for it to unlock.
func (c *ClockTree) releasePLL() {
	rcc := c.rcc
	if rcc.SystemClockStatus() == ClockPLL {
		RecordTrace(EvtLeavePLL, rcc.cfgr.Addr(), uint32(ClockHSI))
		c.startHSI()
		c.SetSystemClock(ClockHSI)
	}
	if rcc.IsPLLEnabled() {
		rcc.DisablePLL()
		rcc.cr.Barrier()
		Wait(func() bool { return !rcc.IsPLLReady() })
	}
}

// configurePLL expects the PLL stopped by releasePLL.
func (c *ClockTree) configurePLL(cfg ClockConfig) {
	rcc := c.rcc

	RecordTrace(EvtPLLSource, rcc.cr.Addr(), uint32(cfg.Source))
	if cfg.Source == OscHSE {
		c.startHSE(cfg.HSEBypass)
	} else {
		c.startHSI()
	}

	rcc.ConfigurePLL(cfg.Source, cfg.PLL)
	RecordTrace(EvtPLLConfig, rcc.pllcfgr.Addr(), rcc.pllcfgr.Get())

	RecordTrace(EvtPLLLock, rcc.cr.Addr(), 1<<crPLLON)
	rcc.EnablePLL()
	rcc.cr.Barrier()
	Wait(rcc.IsPLLReady)
}

func (c *ClockTree) startHSE(bypass bool) {
	if c.rcc.IsHSEReady() {
		return
	}
	c.rcc.EnableHSE(bypass)
	c.rcc.cr.Barrier()
	Wait(c.rcc.IsHSEReady)
}

func (c *ClockTree) startHSI() {
	c.rcc.EnableHSI()
	c.rcc.cr.Barrier()
	Wait(c.rcc.IsHSIReady)
}

func (c *ClockTree) programFlash(cfg ClockConfig) {
	RecordTrace(EvtFlashLatency, c.flash.acr.Addr(), uint32(cfg.FlashLatency))
	c.flash.Configure(cfg.FlashLatency, cfg.InstructionCache, cfg.DataCache, cfg.Prefetch)
}
