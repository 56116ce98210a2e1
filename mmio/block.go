package mmio

// WordSize is the size in bytes of one register.
const WordSize = 4

// Block is a capability over one peripheral instance: a base address and the number of
// registers that belong to it. Offsets are in words.
type Block struct {
	bus   Bus
	base  uintptr
	words uint32
}

// NewBlock binds a peripheral at base spanning words registers.
// It panics on an unaligned base or an empty block.
func NewBlock(bus Bus, base uintptr, words uint32) Block {
	if bus == nil {
		panic("mmio: nil bus")
	}
	if base%WordSize != 0 {
		panic("mmio: unaligned base address")
	}
	if words == 0 {
		panic("mmio: empty register block")
	}
	return Block{bus: bus, base: base, words: words}
}

// Base returns the block's base address.
func (b Block) Base() uintptr {
	return b.base
}

// Words returns the number of registers in the block.
func (b Block) Words() uint32 {
	return b.words
}

// Reg returns a handle to the register at word offset off.
// It panics if off lies outside the block.
func (b Block) Reg(off uint32) Reg {
	if off >= b.words {
		panic("mmio: register offset out of range")
	}
	return Reg{bus: b.bus, addr: b.base + uintptr(off)*WordSize}
}

// Read loads the register at off.
func (b Block) Read(off uint32) uint32 {
	return b.Reg(off).Get()
}

// Write stores value to the register at off.
func (b Block) Write(value uint32, off uint32) {
	b.Reg(off).Set(value)
}

// SetBit sets bit n of the register at off (read-modify-write).
func (b Block) SetBit(n uint8, off uint32) {
	b.Reg(off).SetBit(n)
}

// ClearBit clears bit n of the register at off (read-modify-write).
func (b Block) ClearBit(n uint8, off uint32) {
	b.Reg(off).ClearBit(n)
}

// Barrier issues a store barrier on the block's bus.
func (b Block) Barrier() {
	b.bus.Barrier()
}
