//go:build !(tinygo && cortexm)

package core

import "runtime"

// relax lets a test goroutine flip the status bit being polled.
func relax() {
	runtime.Gosched()
}
