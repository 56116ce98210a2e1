//go:build tinygo && cortexm

package core

import "device/arm"

func relax() {
	arm.Asm("nop")
}
