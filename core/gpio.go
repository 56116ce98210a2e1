package core

import "stm32tx/mmio"

const (
	gpioMODER   = 0
	gpioOSPEEDR = 2
	gpioIDR     = 4
	gpioODR     = 5
	gpioBSRR    = 6
	gpioAFRL    = 8
	gpioAFRH    = 9
	gpioWords   = 10
)

// Pin is a pin number within a port, 0..15.
type Pin uint8

// PinMode is the MODER encoding.
type PinMode uint32

const (
	ModeInput     PinMode = 0b00
	ModeOutput    PinMode = 0b01
	ModeAlternate PinMode = 0b10
	ModeAnalog    PinMode = 0b11
)

// Speed is the OSPEEDR encoding.
type Speed uint32

const (
	SpeedLow      Speed = 0b00
	SpeedMedium   Speed = 0b01
	SpeedHigh     Speed = 0b10
	SpeedVeryHigh Speed = 0b11
)

// AltFunc is an alternate function number, AF0..AF15.
type AltFunc uint32

const AF7_USART1_2_3 AltFunc = 7

// GPIO drives one port.
//
// Output changes go through BSRR, a write-only set/reset register, so main-line code and
// interrupt handlers can drive different pins of the same port without a lock.
type GPIO struct {
	moder   mmio.Reg
	ospeedr mmio.Reg
	idr     mmio.Reg
	odr     mmio.Reg
	bsrr    mmio.Reg
	afr     [2]mmio.Reg
}

func NewGPIO(bus mmio.Bus, base uintptr) *GPIO {
	blk := mmio.NewBlock(bus, base, gpioWords)
	return &GPIO{
		moder:   blk.Reg(gpioMODER),
		ospeedr: blk.Reg(gpioOSPEEDR),
		idr:     blk.Reg(gpioIDR),
		odr:     blk.Reg(gpioODR),
		bsrr:    blk.Reg(gpioBSRR),
		afr:     [2]mmio.Reg{blk.Reg(gpioAFRL), blk.Reg(gpioAFRH)},
	}
}

// SetPinsMode sets the mode of several pins in one store.
func (g *GPIO) SetPinsMode(mode PinMode, pins ...Pin) {
	var mask, value uint32
	for _, p := range pins {
		shift := uint32(p&0xF) * 2
		mask |= 0b11 << shift
		value |= uint32(mode) << shift
	}
	g.moder.Set(g.moder.Get()&^mask | value)
}

// SetSpeed sets the output speed of pin.
func (g *GPIO) SetSpeed(pin Pin, speed Speed) {
	g.ospeedr.ReplaceBits(uint32(speed), 0b11, uint8(pin&0xF)*2)
}

// SetAlternateFunction routes pin to af (AFRL for 0..7, AFRH for 8..15).
func (g *GPIO) SetAlternateFunction(pin Pin, af AltFunc) {
	pin &= 0xF
	g.afr[pin/8].ReplaceBits(uint32(af), 0xF, uint8(pin%8)*4)
}

// SetPin drives pin high.
func (g *GPIO) SetPin(pin Pin) {
	g.bsrr.Set(1 << (pin & 0xF))
}

// ResetPin drives pin low.
func (g *GPIO) ResetPin(pin Pin) {
	g.bsrr.Set(1 << (pin&0xF + 16))
}

// TogglePin inverts the output of pin. It reads ODR and writes a single BSRR bit, so it
// never disturbs other pins.
func (g *GPIO) TogglePin(pin Pin) {
	if g.odr.HasBits(1 << (pin & 0xF)) {
		g.ResetPin(pin)
	} else {
		g.SetPin(pin)
	}
}

// Get reads the input level of pin.
func (g *GPIO) Get(pin Pin) bool {
	return g.idr.HasBits(1 << (pin & 0xF))
}

// IsOutputHigh reads the output latch of pin.
func (g *GPIO) IsOutputHigh(pin Pin) bool {
	return g.odr.HasBits(1 << (pin & 0xF))
}
