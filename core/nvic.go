package core

import "stm32tx/mmio"

const nvicISERWords = 8

// NVIC enables interrupt lines in the Cortex-M interrupt controller.
type NVIC struct {
	blk mmio.Block
}

// NewNVIC binds the ISER registers at base.
func NewNVIC(bus mmio.Bus, base uintptr) *NVIC {
	return &NVIC{blk: mmio.NewBlock(bus, base, nvicISERWords)}
}

// EnableInterrupts enables each irq. ISER is write-1-to-set, so one store per line
// cannot clear another.
func (n *NVIC) EnableInterrupts(irqs ...uint32) {
	for _, irq := range irqs {
		n.blk.Write(1<<(irq%32), irq/32)
	}
}
