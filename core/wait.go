package core

// Wait blocks until cond holds. There is no timeout: hardware readiness that never
// arrives hangs the caller, and the independent watchdog is the bound. Callers that run
// with the watchdog started must keep its feed handler unmasked while waiting.
//
// cond must be a pure function of register contents.
func Wait(cond func() bool) {
	for !cond() {
		relax()
	}
}
