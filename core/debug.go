package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent captures one register-level step of a hardware sequence for post-mortem
// analysis. When the watchdog resets a hung board the last entries show where it stopped.
type TraceEvent struct {
	Step  uint8  // Step code
	Addr  uint32 // Register written
	Value uint32 // Value written or polled for
}

// Step codes
const (
	EvtPowerGate      = 1  // PWR clock gate enabled
	EvtVoltageScale   = 2  // VOS programmed, waiting for readback
	EvtLSI            = 3  // LSI enabled, waiting for ready
	EvtPrescalerGuard = 4  // Bus prescalers forced to the slowest ratio
	EvtLeavePLL       = 5  // System clock moved off the PLL before reprogramming
	EvtPLLSource      = 6  // PLL source oscillator enabled, waiting for ready
	EvtPLLConfig      = 7  // PLLCFGR programmed
	EvtPLLLock        = 8  // PLL enabled, waiting for lock
	EvtFlashLatency   = 9  // Wait states programmed, waiting for readback
	EvtClockSwitch    = 10 // SW programmed, waiting for SWS
	EvtPrescalerFinal = 11 // Bus prescalers relaxed to their target ratios
	EvtHSIOff         = 12 // HSI switched off
	EvtDMAFlush       = 13 // DMA stream armed with a new transfer
	EvtWatchdogStart  = 14 // IWDG started
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	traceRing     [TraceRingSize]TraceEvent
	traceRingHead uint8
	traceCount    uint32
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, semihosting, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTrace appends an event to the trace ring. Safe to call from interrupt handlers.
func RecordTrace(step uint8, addr uintptr, value uint32) {
	state := disableInterrupts()
	idx := traceRingHead
	traceRing[idx] = TraceEvent{
		Step:  step,
		Addr:  uint32(addr),
		Value: value,
	}
	traceRingHead = (idx + 1) % TraceRingSize
	traceCount++
	restoreInterrupts(state)
}

// TraceEvents returns the recorded events from oldest to newest.
func TraceEvents() []TraceEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	n := int(traceCount)
	if n > TraceRingSize {
		n = TraceRingSize
	}
	out := make([]TraceEvent, 0, n)
	start := (int(traceRingHead) - n + TraceRingSize) % TraceRingSize
	for i := 0; i < n; i++ {
		out = append(out, traceRing[(start+i)%TraceRingSize])
	}
	return out
}

// ResetTrace empties the trace ring.
func ResetTrace() {
	state := disableInterrupts()
	traceRing = [TraceRingSize]TraceEvent{}
	traceRingHead = 0
	traceCount = 0
	restoreInterrupts(state)
}

// DumpTrace outputs the trace ring through the debug writer, oldest first.
func DumpTrace() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TRACE] === Trace Ring Dump ===")
	debugPrintln("[TRACE] Total events: " + utoa(traceCount))
	for _, evt := range TraceEvents() {
		debugPrintln("[TRACE] " + stepName(evt.Step) +
			" reg=" + hex32(evt.Addr) +
			" val=" + hex32(evt.Value))
	}
	debugPrintln("[TRACE] === End Trace Dump ===")
}

func stepName(step uint8) string {
	switch step {
	case EvtPowerGate:
		return "POWER_GATE"
	case EvtVoltageScale:
		return "VOLTAGE_SCALE"
	case EvtLSI:
		return "LSI"
	case EvtPrescalerGuard:
		return "PRESCALER_GUARD"
	case EvtLeavePLL:
		return "LEAVE_PLL"
	case EvtPLLSource:
		return "PLL_SOURCE"
	case EvtPLLConfig:
		return "PLL_CONFIG"
	case EvtPLLLock:
		return "PLL_LOCK"
	case EvtFlashLatency:
		return "FLASH_LATENCY"
	case EvtClockSwitch:
		return "CLOCK_SWITCH"
	case EvtPrescalerFinal:
		return "PRESCALER_FINAL"
	case EvtHSIOff:
		return "HSI_OFF"
	case EvtDMAFlush:
		return "DMA_FLUSH"
	case EvtWatchdogStart:
		return "WATCHDOG_START"
	default:
		return "UNKNOWN(" + utoa(uint32(step)) + ")"
	}
}
