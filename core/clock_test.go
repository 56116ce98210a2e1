package core

import (
	"errors"
	"testing"
	"time"
)

func newTestClockTree(m *chipModel) (*ClockTree, *RCC) {
	rcc := NewRCC(m.mem, RCCBase)
	return NewClockTree(rcc, NewPower(m.mem, PWRBase), NewFlash(m.mem, FlashBase)), rcc
}

func TestDefaultClockConfig(t *testing.T) {
	cfg := DefaultClockConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config rejected: %v", err)
	}

	f := cfg.Frequencies()
	want := Frequencies{
		SYSCLK: 168_000_000,
		HCLK:   168_000_000,
		PCLK1:  42_000_000,
		PCLK2:  84_000_000,
		PLL48:  48_000_000,
	}
	if f != want {
		t.Errorf("Expected %+v, got %+v", want, f)
	}
}

func TestClockConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ClockConfig)
		want   error
	}{
		{"M too small", func(c *ClockConfig) { c.PLL.M = 1 }, ErrInvalidPLL},
		{"odd P", func(c *ClockConfig) { c.PLL.P = 3 }, ErrInvalidPLL},
		{"Q too large", func(c *ClockConfig) { c.PLL.Q = 16 }, ErrInvalidPLL},
		{"VCO input too high", func(c *ClockConfig) { c.PLL.M = 2 }, ErrVCOInput},
		{"VCO input too low", func(c *ClockConfig) { c.PLL.M = 16 }, ErrVCOInput},
		{"VCO output too high", func(c *ClockConfig) { c.PLL.N = 432 }, ErrVCOOutput},
		{"180 MHz needs over-drive", func(c *ClockConfig) { c.PLL.N = 180 }, ErrClockTooFast},
		{"168 MHz above scale 2", func(c *ClockConfig) { c.VoltageScale = 2 }, ErrClockTooFast},
		{"144 MHz at scale 2", func(c *ClockConfig) { c.PLL.N = 144; c.VoltageScale = 2 }, nil},
		{"144 MHz above scale 3", func(c *ClockConfig) { c.PLL.N = 144; c.VoltageScale = 3 }, ErrClockTooFast},
		{"PCLK1 too fast", func(c *ClockConfig) { c.APB1 = APBDiv2 }, ErrClockTooFast},
		{"PCLK2 too fast", func(c *ClockConfig) { c.APB2 = APBDiv1 }, ErrClockTooFast},
		{"latency too low", func(c *ClockConfig) { c.FlashLatency = 4 }, ErrFlashLatency},
		{"latency out of range", func(c *ClockConfig) { c.FlashLatency = 16 }, ErrFlashLatency},
		{"bad AHB prescaler", func(c *ClockConfig) { c.AHB = 0b0011 }, ErrInvalidPrescaler},
		{"bad APB prescaler", func(c *ClockConfig) { c.APB1 = 0b011 }, ErrInvalidPrescaler},
		{"bad voltage scale", func(c *ClockConfig) { c.VoltageScale = 4 }, ErrVoltageScale},
		{"bad system clock", func(c *ClockConfig) { c.SystemClock = 0b11 }, ErrClockSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClockConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			var cerr *ConfigError
			if err != nil && !errors.As(err, &cerr) {
				t.Errorf("Expected a *ConfigError, got %T", err)
			}
		})
	}
}

func TestRequiredLatency(t *testing.T) {
	tests := []struct {
		hclk uint32
		want uint8
	}{
		{0, 0},
		{16_000_000, 0},
		{30_000_000, 0},
		{30_000_001, 1},
		{84_000_000, 2},
		{168_000_000, 5},
		{180_000_000, 5},
	}
	for _, tt := range tests {
		if got := RequiredLatency(tt.hclk); got != tt.want {
			t.Errorf("RequiredLatency(%d): expected %d, got %d", tt.hclk, tt.want, got)
		}
	}
}

func TestPrescalerDivisors(t *testing.T) {
	ahb := map[AHBPrescaler]uint32{
		AHBDiv1: 1, AHBDiv2: 2, AHBDiv4: 4, AHBDiv8: 8, AHBDiv16: 16,
		AHBDiv64: 64, AHBDiv128: 128, AHBDiv256: 256, AHBDiv512: 512,
		0b0111: 0,
	}
	for p, want := range ahb {
		if got := p.Divisor(); got != want {
			t.Errorf("AHB %04b: expected /%d, got /%d", p, want, got)
		}
	}
	apb := map[APBPrescaler]uint32{
		APBDiv1: 1, APBDiv2: 2, APBDiv4: 4, APBDiv8: 8, APBDiv16: 16,
		0b010: 0,
	}
	for p, want := range apb {
		if got := p.Divisor(); got != want {
			t.Errorf("APB %03b: expected /%d, got /%d", p, want, got)
		}
	}
}

func TestPLLReadback(t *testing.T) {
	m := newChipModel(t)
	rcc := NewRCC(m.mem, RCCBase)

	// Reserved bits outside the PLL fields must survive.
	m.mem.Poke(addrRCCPLLCFGR, 1<<31)
	want := PLLConfig{M: 4, N: 168, P: 2, Q: 7}
	rcc.ConfigurePLL(OscHSE, want)

	src, got := rcc.PLL()
	if src != OscHSE {
		t.Errorf("Expected HSE source, got %d", src)
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
	if m.mem.Peek(addrRCCPLLCFGR)&(1<<31) == 0 {
		t.Error("ConfigurePLL cleared a reserved bit")
	}
}

func TestBringupDefault(t *testing.T) {
	m := newChipModel(t)
	tree, rcc := newTestClockTree(m)

	if err := tree.Bringup(DefaultClockConfig()); err != nil {
		t.Fatalf("Bringup failed: %v", err)
	}

	if got := rcc.SystemClockStatus(); got != ClockPLL {
		t.Errorf("Expected PLL as system clock, got %d", got)
	}
	if _, pll := rcc.PLL(); pll != DefaultClockConfig().PLL {
		t.Errorf("Expected PLL %+v, got %+v", DefaultClockConfig().PLL, pll)
	}
	ahb, apb1, apb2 := rcc.Prescalers()
	if ahb != AHBDiv1 || apb1 != APBDiv4 || apb2 != APBDiv2 {
		t.Errorf("Unexpected prescalers: %04b %03b %03b", ahb, apb1, apb2)
	}
	if got := tree.flash.Latency(); got != 5 {
		t.Errorf("Expected 5 wait states, got %d", got)
	}
	if got := tree.pwr.VoltageScale(); got != 1 {
		t.Errorf("Expected voltage scale 1, got %d", got)
	}
	if rcc.IsHSIReady() {
		t.Error("HSI should be off once the PLL runs from HSE")
	}
	if !rcc.IsLSIReady() {
		t.Error("LSI should be running")
	}
	if m.mem.Peek(addrRCCCR)&(1<<crHSEBYP) == 0 {
		t.Error("HSE bypass not set")
	}
	if got := tree.Frequencies().PCLK1; got != 42_000_000 {
		t.Errorf("Expected PCLK1 42 MHz, got %d", got)
	}
}

func TestBringupStepOrder(t *testing.T) {
	m := newChipModel(t)
	tree, _ := newTestClockTree(m)

	if err := tree.Bringup(DefaultClockConfig()); err != nil {
		t.Fatalf("Bringup failed: %v", err)
	}

	want := []uint8{
		EvtPowerGate, EvtVoltageScale, EvtLSI, EvtPrescalerGuard,
		EvtPLLSource, EvtPLLConfig, EvtPLLLock, EvtFlashLatency,
		EvtClockSwitch, EvtPrescalerFinal, EvtHSIOff,
	}
	events := TraceEvents()
	if len(events) != len(want) {
		t.Fatalf("Expected %d trace events, got %d: %+v", len(want), len(events), events)
	}
	for i, evt := range events {
		if evt.Step != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, stepName(want[i]), stepName(evt.Step))
		}
	}
}

func TestBringupRegisterOrder(t *testing.T) {
	m := newChipModel(t)
	tree, _ := newTestClockTree(m)

	if err := tree.Bringup(DefaultClockConfig()); err != nil {
		t.Fatalf("Bringup failed: %v", err)
	}
	trace := m.mem.Trace()

	pwrGate := indexOf(trace, addrRCCAPB1ENR, func(v uint32) bool { return v&(1<<apb1enrPWR) != 0 })
	vos := indexOf(trace, addrPWRCR, nil)
	guard := indexOf(trace, addrRCCCFGR, func(v uint32) bool {
		return (v>>cfgrHPRE)&cfgrHPREMask == uint32(AHBDiv512)
	})
	pllOn := indexOf(trace, addrRCCCR, func(v uint32) bool { return v&(1<<crPLLON) != 0 })
	acr := indexOf(trace, addrFlashACR, nil)
	sw := indexOf(trace, addrRCCCFGR, func(v uint32) bool { return v&cfgrSWMask == uint32(ClockPLL) })
	final := indexOf(trace, addrRCCCFGR, func(v uint32) bool {
		return (v>>cfgrPPRE1)&cfgrPPREMask == uint32(APBDiv4)
	})

	for name, idx := range map[string]int{
		"pwr gate": pwrGate, "vos": vos, "guard": guard, "pll on": pllOn,
		"flash": acr, "switch": sw, "final prescalers": final,
	} {
		if idx < 0 {
			t.Fatalf("No %s store in trace", name)
		}
	}

	if !(pwrGate < vos) {
		t.Error("VOS written before the PWR clock was gated")
	}
	if !(guard < pllOn) {
		t.Error("PLL enabled before the prescalers were slowed")
	}
	if !(acr < sw) {
		t.Error("Wait states raised after the switch to the faster clock")
	}
	if !(sw < final) {
		t.Error("Target prescalers applied before the switch")
	}

	// A barrier separates each configuration store from the poll that follows it.
	if !trace[sw+1].Barrier {
		t.Error("Expected a barrier right after the SW store")
	}
}

func TestBringupLeavesActivePLL(t *testing.T) {
	m := newChipModel(t)
	tree, rcc := newTestClockTree(m)

	// Running from the PLL, as the TinyGo runtime leaves it.
	m.mem.Poke(addrRCCCR, 1<<crHSION|1<<crHSIRDY|1<<crPLLON|1<<crPLLRDY)
	m.mem.Poke(addrRCCCFGR, uint32(ClockPLL)|uint32(ClockPLL)<<cfgrSWS)
	m.mem.Poke(addrFlashACR, 5)

	if err := tree.Bringup(DefaultClockConfig()); err != nil {
		t.Fatalf("Bringup failed: %v", err)
	}
	trace := m.mem.Trace()

	toHSI := indexOf(trace, addrRCCCFGR, func(v uint32) bool { return v&cfgrSWMask == uint32(ClockHSI) })
	pllOff := indexOf(trace, addrRCCCR, func(v uint32) bool { return v&(1<<crPLLON) == 0 })
	pllcfgr := indexOf(trace, addrRCCPLLCFGR, nil)
	if toHSI < 0 || pllOff < 0 || pllcfgr < 0 {
		t.Fatalf("Missing stores: switch=%d pll off=%d pllcfgr=%d", toHSI, pllOff, pllcfgr)
	}
	if !(toHSI < pllOff && pllOff < pllcfgr) {
		t.Errorf("Expected switch to HSI, PLL off, then PLLCFGR; got %d, %d, %d", toHSI, pllOff, pllcfgr)
	}

	// VOS is ignored while the PLL runs.
	vos := indexOf(trace, addrPWRCR, nil)
	if vos < 0 || vos < pllOff {
		t.Errorf("Expected VOS written after the PLL stopped, got VOS at %d and PLL off at %d", vos, pllOff)
	}

	found := false
	for _, evt := range TraceEvents() {
		if evt.Step == EvtLeavePLL {
			found = true
		}
	}
	if !found {
		t.Error("Expected a LEAVE_PLL trace event")
	}
	if rcc.SystemClockStatus() != ClockPLL {
		t.Error("Expected to end on the PLL")
	}
}

func TestBringupLowersLatencyAfterSwitch(t *testing.T) {
	m := newChipModel(t)
	tree, rcc := newTestClockTree(m)
	m.mem.Poke(addrFlashACR, 5)

	cfg := ClockConfig{
		SystemClock:  ClockHSI,
		AHB:          AHBDiv1,
		APB1:         APBDiv1,
		APB2:         APBDiv1,
		FlashLatency: 0,
		VoltageScale: 3,
	}
	if err := tree.Bringup(cfg); err != nil {
		t.Fatalf("Bringup failed: %v", err)
	}

	var order []uint8
	for _, evt := range TraceEvents() {
		if evt.Step == EvtClockSwitch || evt.Step == EvtFlashLatency {
			order = append(order, evt.Step)
		}
	}
	if len(order) != 2 || order[0] != EvtClockSwitch || order[1] != EvtFlashLatency {
		t.Errorf("Expected switch then flash latency, got %v", order)
	}
	if got := tree.flash.Latency(); got != 0 {
		t.Errorf("Expected 0 wait states, got %d", got)
	}
	if !rcc.IsHSIReady() {
		t.Error("HSI must stay on when it is the system clock")
	}
	if rcc.IsPLLEnabled() {
		t.Error("PLL should not be touched")
	}
	if got := tree.Frequencies(); got.SYSCLK != HSIFreq || got.PLL48 != 0 {
		t.Errorf("Unexpected frequencies %+v", got)
	}
}

func TestBringupRejectsInvalidConfig(t *testing.T) {
	m := newChipModel(t)
	tree, _ := newTestClockTree(m)

	cfg := DefaultClockConfig()
	cfg.PLL.N = 10
	if err := tree.Bringup(cfg); !errors.Is(err, ErrInvalidPLL) {
		t.Errorf("Expected ErrInvalidPLL, got %v", err)
	}
	if n := len(m.mem.Trace()); n != 0 {
		t.Errorf("Expected no register writes, got %d", n)
	}
}

func TestSetSystemClockWaitsForStatus(t *testing.T) {
	m := newChipModel(t)
	tree, rcc := newTestClockTree(m)

	// SWS stays where it was: the clock has not switched yet.
	m.mem.OnWrite(addrRCCCFGR, func(old, w uint32) uint32 {
		return w&^(cfgrSWMask<<cfgrSWS) | old&(cfgrSWMask<<cfgrSWS)
	})

	done := make(chan struct{})
	go func() {
		tree.SetSystemClock(ClockPLL)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("SetSystemClock returned before SWS reported the new source")
	case <-time.After(50 * time.Millisecond):
	}

	m.mem.Update(addrRCCCFGR, func(v uint32) uint32 {
		return v | uint32(ClockPLL)<<cfgrSWS
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetSystemClock did not return after SWS changed")
	}
	if rcc.SystemClockStatus() != ClockPLL {
		t.Error("Expected SWS to report the PLL")
	}
}
