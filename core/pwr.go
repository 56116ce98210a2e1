package core

import "stm32tx/mmio"

const (
	pwrCR    = 0
	pwrCSR   = 1
	pwrWords = 2

	pwrCRVOS     = 14
	pwrCRVOSMask = 0x3
	pwrCSRVOSRDY = 14
)

// Power drives the voltage regulator.
type Power struct {
	cr  mmio.Reg
	csr mmio.Reg
}

func NewPower(bus mmio.Bus, base uintptr) *Power {
	blk := mmio.NewBlock(bus, base, pwrWords)
	return &Power{cr: blk.Reg(pwrCR), csr: blk.Reg(pwrCSR)}
}

// VOS encodings per DS9484: scale 1 is the highest performance level.
func encodeVOS(scale uint8) uint32 {
	switch scale {
	case 1:
		return 0b11
	case 2:
		return 0b10
	default:
		return 0b01
	}
}

// VoltageScale reads back the programmed scale (1, 2 or 3).
func (p *Power) VoltageScale() uint8 {
	switch p.cr.Field(pwrCRVOSMask, pwrCRVOS) {
	case 0b11:
		return 1
	case 0b10:
		return 2
	default:
		return 3
	}
}

// SetVoltageScale programs VOS and blocks until it reads back. Scales outside 1..3
// select scale 3. The PWR clock must already be gated on and the PLL must be off: on
// F42x/43x a VOS write made while the PLL runs is not applied, and the wait never ends.
func (p *Power) SetVoltageScale(scale uint8) {
	if scale < 1 || scale > 3 {
		scale = 3
	}
	p.cr.ReplaceBits(encodeVOS(scale), pwrCRVOSMask, pwrCRVOS)
	p.cr.Barrier()
	Wait(func() bool { return p.VoltageScale() == scale })
}

// IsRegulatorReady reports CSR.VOSRDY. The hardware only raises it once the PLL runs.
func (p *Power) IsRegulatorReady() bool {
	return p.csr.HasBits(1 << pwrCSRVOSRDY)
}
