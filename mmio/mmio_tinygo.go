//go:build tinygo && cortexm

package mmio

import (
	"device/arm"
	"runtime/volatile"
	"unsafe"
)

// MMIO is the hardware bus: every access is a volatile load or store at the
// physical address.
type MMIO struct{}

func (MMIO) Load(addr uintptr) uint32 {
	return (*volatile.Register32)(unsafe.Pointer(addr)).Get()
}

func (MMIO) Store(addr uintptr, value uint32) {
	(*volatile.Register32)(unsafe.Pointer(addr)).Set(value)
}

// Barrier issues a data synchronization barrier.
func (MMIO) Barrier() {
	arm.Asm("dsb")
}
