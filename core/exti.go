package core

import "stm32tx/mmio"

const (
	extiIMR   = 0
	extiRTSR  = 2
	extiFTSR  = 3
	extiPR    = 5
	extiWords = 6

	syscfgEXTICR1 = 2
	syscfgWords   = 8
)

// EXTI drives the external interrupt controller.
type EXTI struct {
	imr  mmio.Reg
	rtsr mmio.Reg
	ftsr mmio.Reg
	pr   mmio.Reg
}

func NewEXTI(bus mmio.Bus, base uintptr) *EXTI {
	blk := mmio.NewBlock(bus, base, extiWords)
	return &EXTI{
		imr:  blk.Reg(extiIMR),
		rtsr: blk.Reg(extiRTSR),
		ftsr: blk.Reg(extiFTSR),
		pr:   blk.Reg(extiPR),
	}
}

func (e *EXTI) UnmaskInterrupt(line uint8) { e.imr.SetBit(line) }
func (e *EXTI) EnableRisingTrigger(line uint8) { e.rtsr.SetBit(line) }
func (e *EXTI) EnableFallingTrigger(line uint8) { e.ftsr.SetBit(line) }
func (e *EXTI) IsPending(line uint8) bool { return e.pr.HasBits(1 << line) }

// ClearPending clears one line. PR is rc_w1: only the written bit is cleared, so lines
// owned by other handlers are left pending.
func (e *EXTI) ClearPending(line uint8) {
	e.pr.Set(1 << line)
	e.pr.Barrier()
}

// SYSCFG drives the system configuration controller.
type SYSCFG struct {
	blk mmio.Block
}

func NewSYSCFG(bus mmio.Bus, base uintptr) *SYSCFG {
	return &SYSCFG{blk: mmio.NewBlock(bus, base, syscfgWords)}
}

// SetExternalInterruptSource routes EXTI line to the same-numbered pin of port.
func (s *SYSCFG) SetExternalInterruptSource(line uint8, port GPIOPort) {
	reg := s.blk.Reg(syscfgEXTICR1 + uint32(line>>2)&3)
	reg.ReplaceBits(uint32(port), 0xF, (line%4)*4)
}
