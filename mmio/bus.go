// Package mmio provides word-granular access to memory-mapped peripheral registers.
//
// All register traffic goes through a Bus. On the MCU the bus is MMIO, which issues
// volatile 32-bit loads and stores; on the host it is a simulated Memory so that driver
// sequencing can be tested without hardware.
package mmio

// Bus performs naturally aligned 32-bit accesses at absolute addresses.
type Bus interface {
	// Load performs exactly one volatile read.
	Load(addr uintptr) uint32

	// Store performs exactly one volatile write.
	Store(addr uintptr, value uint32)

	// Barrier completes all outstanding stores before the next instruction.
	// Call it after writes whose effect must be visible before a busy-wait.
	Barrier()
}
