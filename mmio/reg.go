package mmio

// Reg is a single 32-bit register. The zero value is not usable; obtain one from Block.Reg.
//
// The bit helpers are read-modify-write sequences and are not atomic with respect to
// interrupt handlers. A register touched from more than one execution context must either
// be partitioned by bit ownership or written with whole-word stores to set/reset style
// registers (BSRR, IFCR, PR).
type Reg struct {
	bus  Bus
	addr uintptr
}

// Addr returns the absolute address of the register.
func (r Reg) Addr() uintptr {
	return r.addr
}

// Get performs one volatile read.
func (r Reg) Get() uint32 {
	return r.bus.Load(r.addr)
}

// Set performs one volatile write.
func (r Reg) Set(value uint32) {
	r.bus.Store(r.addr, value)
}

// SetBits ORs mask into the register.
func (r Reg) SetBits(mask uint32) {
	r.Set(r.Get() | mask)
}

// ClearBits clears every bit of mask.
func (r Reg) ClearBits(mask uint32) {
	r.Set(r.Get() &^ mask)
}

// HasBits reports whether any bit of mask is set.
func (r Reg) HasBits(mask uint32) bool {
	return r.Get()&mask != 0
}

// SetBit sets bit n.
func (r Reg) SetBit(n uint8) {
	r.SetBits(1 << n)
}

// ClearBit clears bit n.
func (r Reg) ClearBit(n uint8) {
	r.ClearBits(1 << n)
}

// Field extracts (reg >> pos) & mask.
func (r Reg) Field(mask uint32, pos uint8) uint32 {
	return (r.Get() >> pos) & mask
}

// ReplaceBits replaces the field (mask << pos) with value, preserving the other bits.
func (r Reg) ReplaceBits(value, mask uint32, pos uint8) {
	r.Set(Replace(r.Get(), value, mask, pos))
}

// Replace returns word with the field (mask << pos) replaced by value.
func Replace(word, value, mask uint32, pos uint8) uint32 {
	return word&^(mask<<pos) | (value&mask)<<pos
}

// Barrier issues a store barrier on the register's bus.
func (r Reg) Barrier() {
	r.bus.Barrier()
}
