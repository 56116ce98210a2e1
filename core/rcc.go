package core

import "stm32tx/mmio"

// RCC register word offsets.
const (
	rccCR      = 0
	rccPLLCFGR = 1
	rccCFGR    = 2
	rccAHB1ENR = 12
	rccAPB1ENR = 16
	rccAPB2ENR = 17
	rccCSR     = 29
	rccWords   = 36
)

// RCC_CR bits.
const (
	crHSION     = 0
	crHSIRDY    = 1
	crHSEON     = 16
	crHSERDY    = 17
	crHSEBYP    = 18
	crPLLON     = 24
	crPLLRDY    = 25
	crPLLI2SRDY = 27
	crPLLSAIRDY = 29
)

// RCC_PLLCFGR fields.
const (
	pllcfgrM      = 0
	pllcfgrMMask  = 0x3F
	pllcfgrN      = 6
	pllcfgrNMask  = 0x1FF
	pllcfgrP      = 16
	pllcfgrPMask  = 0x3
	pllcfgrSrc    = 22
	pllcfgrQ      = 24
	pllcfgrQMask  = 0xF
	pllcfgrFields = pllcfgrMMask<<pllcfgrM | pllcfgrNMask<<pllcfgrN | pllcfgrPMask<<pllcfgrP |
		1<<pllcfgrSrc | pllcfgrQMask<<pllcfgrQ
)

// RCC_CFGR fields.
const (
	cfgrSW       = 0
	cfgrSWS      = 2
	cfgrSWMask   = 0x3
	cfgrHPRE     = 4
	cfgrHPREMask = 0xF
	cfgrPPRE1    = 10
	cfgrPPRE2    = 13
	cfgrPPREMask = 0x7
)

// Clock gate bits.
const (
	ahb1enrDMA1   = 21
	ahb1enrDMA2   = 22
	apb1enrTIM6   = 4
	apb1enrTIM7   = 5
	apb1enrUSART2 = 17
	apb1enrUSART3 = 18
	apb1enrPWR    = 28
	apb2enrUSART1 = 4
	apb2enrSYSCFG = 14

	csrLSION  = 0
	csrLSIRDY = 1
)

// ClockSource is a system clock selection as encoded in RCC_CFGR.SW/SWS.
type ClockSource uint8

const (
	ClockHSI ClockSource = 0b00
	ClockHSE ClockSource = 0b01
	ClockPLL ClockSource = 0b10
)

// Oscillator selects the PLL input.
type Oscillator uint8

const (
	OscHSI Oscillator = iota
	OscHSE
)

// GPIOPort identifies a GPIO port; its value is the AHB1ENR bit.
type GPIOPort uint8

const (
	PortA GPIOPort = iota
	PortB
	PortC
	PortD
	PortE
	PortF
	PortG
	PortH
	PortI
	PortJ
	PortK
)

// BasicTimerID identifies TIM6 or TIM7.
type BasicTimerID uint8

const (
	TIM6 BasicTimerID = 6
	TIM7 BasicTimerID = 7
)

// AHBPrescaler is the HPRE encoding.
type AHBPrescaler uint32

const (
	AHBDiv1   AHBPrescaler = 0b0000
	AHBDiv2   AHBPrescaler = 0b1000
	AHBDiv4   AHBPrescaler = 0b1001
	AHBDiv8   AHBPrescaler = 0b1010
	AHBDiv16  AHBPrescaler = 0b1011
	AHBDiv64  AHBPrescaler = 0b1100
	AHBDiv128 AHBPrescaler = 0b1101
	AHBDiv256 AHBPrescaler = 0b1110
	AHBDiv512 AHBPrescaler = 0b1111
)

// Divisor returns the division ratio, or 0 for an invalid encoding.
func (p AHBPrescaler) Divisor() uint32 {
	switch {
	case p == AHBDiv1:
		return 1
	case p >= AHBDiv2 && p <= AHBDiv16:
		return 2 << (p - AHBDiv2)
	case p >= AHBDiv64 && p <= AHBDiv512:
		return 64 << (p - AHBDiv64)
	}
	return 0
}

// APBPrescaler is the PPRE1/PPRE2 encoding.
type APBPrescaler uint32

const (
	APBDiv1  APBPrescaler = 0b000
	APBDiv2  APBPrescaler = 0b100
	APBDiv4  APBPrescaler = 0b101
	APBDiv8  APBPrescaler = 0b110
	APBDiv16 APBPrescaler = 0b111
)

// Divisor returns the division ratio, or 0 for an invalid encoding.
func (p APBPrescaler) Divisor() uint32 {
	switch {
	case p == APBDiv1:
		return 1
	case p >= APBDiv2 && p <= APBDiv16:
		return 2 << (p - APBDiv2)
	}
	return 0
}

// PLLConfig holds the main PLL factors: VCO = in/M*N, SYSCLK = VCO/P, 48 MHz domain = VCO/Q.
type PLLConfig struct {
	M uint32 // 2..63
	N uint32 // 50..432
	P uint32 // 2, 4, 6 or 8
	Q uint32 // 2..15
}

// RCC drives the reset and clock control block.
type RCC struct {
	cr      mmio.Reg
	pllcfgr mmio.Reg
	cfgr    mmio.Reg
	ahb1enr mmio.Reg
	apb1enr mmio.Reg
	apb2enr mmio.Reg
	csr     mmio.Reg
}

// NewRCC binds the RCC block at base.
func NewRCC(bus mmio.Bus, base uintptr) *RCC {
	blk := mmio.NewBlock(bus, base, rccWords)
	return &RCC{
		cr:      blk.Reg(rccCR),
		pllcfgr: blk.Reg(rccPLLCFGR),
		cfgr:    blk.Reg(rccCFGR),
		ahb1enr: blk.Reg(rccAHB1ENR),
		apb1enr: blk.Reg(rccAPB1ENR),
		apb2enr: blk.Reg(rccAPB2ENR),
		csr:     blk.Reg(rccCSR),
	}
}

func (r *RCC) EnableHSI() { r.cr.SetBit(crHSION) }
func (r *RCC) DisableHSI() { r.cr.ClearBit(crHSION) }
func (r *RCC) IsHSIReady() bool { return r.cr.HasBits(1 << crHSIRDY) }
func (r *RCC) IsHSEReady() bool { return r.cr.HasBits(1 << crHSERDY) }
func (r *RCC) EnablePLL() { r.cr.SetBit(crPLLON) }
func (r *RCC) DisablePLL() { r.cr.ClearBit(crPLLON) }
func (r *RCC) IsPLLEnabled() bool { return r.cr.HasBits(1 << crPLLON) }
func (r *RCC) IsPLLReady() bool { return r.cr.HasBits(1 << crPLLRDY) }
func (r *RCC) EnableLSI() { r.csr.SetBit(csrLSION) }
func (r *RCC) IsLSIReady() bool { return r.csr.HasBits(1 << csrLSIRDY) }

// EnableHSE starts the external oscillator. bypass selects an external clock input
// instead of a crystal; it can only change while HSE is off.
func (r *RCC) EnableHSE(bypass bool) {
	if bypass {
		r.cr.SetBit(crHSEBYP)
	} else {
		r.cr.ClearBit(crHSEBYP)
	}
	r.cr.SetBit(crHSEON)
}

// ConfigurePLL programs source and factors. The PLL must be off and must not be the
// system clock.
func (r *RCC) ConfigurePLL(src Oscillator, pll PLLConfig) {
	v := r.pllcfgr.Get() &^ pllcfgrFields
	v |= (pll.M & pllcfgrMMask) << pllcfgrM
	v |= (pll.N & pllcfgrNMask) << pllcfgrN
	v |= ((pll.P/2 - 1) & pllcfgrPMask) << pllcfgrP
	v |= (pll.Q & pllcfgrQMask) << pllcfgrQ
	if src == OscHSE {
		v |= 1 << pllcfgrSrc
	}
	r.pllcfgr.Set(v)
}

// PLL reads back the programmed PLL source and factors.
func (r *RCC) PLL() (Oscillator, PLLConfig) {
	v := r.pllcfgr.Get()
	src := OscHSI
	if v&(1<<pllcfgrSrc) != 0 {
		src = OscHSE
	}
	return src, PLLConfig{
		M: (v >> pllcfgrM) & pllcfgrMMask,
		N: (v >> pllcfgrN) & pllcfgrNMask,
		P: ((v>>pllcfgrP)&pllcfgrPMask + 1) * 2,
		Q: (v >> pllcfgrQ) & pllcfgrQMask,
	}
}

// SetPrescalers writes HPRE, PPRE1 and PPRE2 in one store.
func (r *RCC) SetPrescalers(ahb AHBPrescaler, apb1, apb2 APBPrescaler) {
	v := r.cfgr.Get()
	v = mmio.Replace(v, uint32(ahb), cfgrHPREMask, cfgrHPRE)
	v = mmio.Replace(v, uint32(apb1), cfgrPPREMask, cfgrPPRE1)
	v = mmio.Replace(v, uint32(apb2), cfgrPPREMask, cfgrPPRE2)
	r.cfgr.Set(v)
}

// Prescalers reads back HPRE, PPRE1 and PPRE2.
func (r *RCC) Prescalers() (AHBPrescaler, APBPrescaler, APBPrescaler) {
	v := r.cfgr.Get()
	return AHBPrescaler((v >> cfgrHPRE) & cfgrHPREMask),
		APBPrescaler((v >> cfgrPPRE1) & cfgrPPREMask),
		APBPrescaler((v >> cfgrPPRE2) & cfgrPPREMask)
}

// SelectSystemClock writes SW. The switch is complete only once SystemClockStatus agrees.
func (r *RCC) SelectSystemClock(src ClockSource) {
	r.cfgr.ReplaceBits(uint32(src), cfgrSWMask, cfgrSW)
}

// SystemClockStatus reads SWS.
func (r *RCC) SystemClockStatus() ClockSource {
	return ClockSource(r.cfgr.Field(cfgrSWMask, cfgrSWS))
}

// The gate helpers below read the enable register back after setting it. RM0090 §6.3
// requires a delay between enabling a peripheral clock and touching the peripheral; the
// read-back provides it and must stay a real bus access.

// EnablePower gates the PWR interface clock.
func (r *RCC) EnablePower() {
	r.apb1enr.SetBit(apb1enrPWR)
	_ = r.apb1enr.Get()
}

// EnableSYSCFG gates the system configuration controller clock.
func (r *RCC) EnableSYSCFG() {
	r.apb2enr.SetBit(apb2enrSYSCFG)
	_ = r.apb2enr.Get()
}

// EnableGPIOPorts gates the given GPIO ports in one store.
func (r *RCC) EnableGPIOPorts(ports ...GPIOPort) {
	var mask uint32
	for _, p := range ports {
		mask |= 1 << p
	}
	r.ahb1enr.SetBits(mask)
	_ = r.ahb1enr.Get()
}

// EnableDMA gates DMA1 or DMA2.
func (r *RCC) EnableDMA(n int) {
	switch n {
	case 1:
		r.ahb1enr.SetBit(ahb1enrDMA1)
	case 2:
		r.ahb1enr.SetBit(ahb1enrDMA2)
	default:
		return
	}
	_ = r.ahb1enr.Get()
}

// EnableUSART gates USART1, USART2 or USART3.
func (r *RCC) EnableUSART(n int) {
	switch n {
	case 1:
		r.apb2enr.SetBit(apb2enrUSART1)
		_ = r.apb2enr.Get()
	case 2:
		r.apb1enr.SetBit(apb1enrUSART2)
		_ = r.apb1enr.Get()
	case 3:
		r.apb1enr.SetBit(apb1enrUSART3)
		_ = r.apb1enr.Get()
	}
}

// EnableBasicTimers gates TIM6 and/or TIM7.
func (r *RCC) EnableBasicTimers(timers ...BasicTimerID) {
	var mask uint32
	for _, t := range timers {
		switch t {
		case TIM6:
			mask |= 1 << apb1enrTIM6
		case TIM7:
			mask |= 1 << apb1enrTIM7
		}
	}
	r.apb1enr.SetBits(mask)
	_ = r.apb1enr.Get()
}
