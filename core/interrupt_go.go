//go:build !tinygo

package core

// State stands in for the saved interrupt mask on the host, where there are no
// interrupts to mask.
type State uintptr

func disableInterrupts() State {
	return 0
}

func restoreInterrupts(state State) {}
