package core

import (
	"stm32tx/mmio"
	"stm32tx/x/mathx"
)

// USART register word offsets.
const (
	usartSR    = 0
	usartDR    = 1
	usartBRR   = 2
	usartCR1   = 3
	usartCR2   = 4
	usartCR3   = 5
	usartWords = 7
)

// USART bits.
const (
	srTC   = 6
	srTXE  = 7
	cr1TE  = 3
	cr1PCE = 10
	cr1M   = 12
	cr1UE  = 13

	cr2STOP     = 12
	cr2STOPMask = 0x3

	cr3DMAT = 7

	brrFractionMask = 0xF
	brrMantissaMask = 0xFFF
)

// WordLength is the CR1.M encoding.
type WordLength uint32

const (
	WordLength8 WordLength = 0 // 1 start bit, 8 data bits
	WordLength9 WordLength = 1 // 1 start bit, 9 data bits
)

// StopBits is the CR2.STOP encoding.
type StopBits uint32

const (
	StopBits1   StopBits = 0b00
	StopBits0_5 StopBits = 0b01
	StopBits2   StopBits = 0b10
	StopBits1_5 StopBits = 0b11
)

// Control holds USART control fields to change. Unset fields keep their current value.
type Control struct {
	Enabled        Opt[bool]
	ParityControl  Opt[bool]
	Transmitter    Opt[bool]
	WordLength     Opt[WordLength]
	StopBits       Opt[StopBits]
	DMATransmitter Opt[bool]
}

// USART drives the transmit side of one USART.
type USART struct {
	sr  mmio.Reg
	dr  mmio.Reg
	brr mmio.Reg
	cr1 mmio.Reg
	cr2 mmio.Reg
	cr3 mmio.Reg
}

func NewUSART(bus mmio.Bus, base uintptr) *USART {
	blk := mmio.NewBlock(bus, base, usartWords)
	return &USART{
		sr:  blk.Reg(usartSR),
		dr:  blk.Reg(usartDR),
		brr: blk.Reg(usartBRR),
		cr1: blk.Reg(usartCR1),
		cr2: blk.Reg(usartCR2),
		cr3: blk.Reg(usartCR3),
	}
}

// BaudDivisor splits pclk/baud (16x oversampling) into BRR mantissa and fraction,
// rounding to the nearest sixteenth.
func BaudDivisor(pclk, baud uint32) (mantissa, fraction uint32, err error) {
	if baud == 0 {
		return 0, 0, configErr("baud divisor", ErrInvalidBaud)
	}
	div := mathx.RoundDiv(pclk, baud)
	if div < 16 || div>>4 > brrMantissaMask {
		return 0, 0, configErr("baud divisor", ErrInvalidBaud)
	}
	return div >> 4, div & brrFractionMask, nil
}

// SetBaudRate writes BRR = mantissa<<4 | fraction (RM0090 §30.3.4).
func (u *USART) SetBaudRate(mantissa, fraction uint32) {
	u.brr.Set((mantissa&brrMantissaMask)<<4 | fraction&brrFractionMask)
}

// SetBaud programs BRR for baud given the peripheral clock.
func (u *USART) SetBaud(pclk, baud uint32) error {
	m, f, err := BaudDivisor(pclk, baud)
	if err != nil {
		return err
	}
	u.SetBaudRate(m, f)
	return nil
}

// Configure applies the set fields of ctl, preserving every other bit of CR1..CR3.
func (u *USART) Configure(ctl Control) {
	cr1, cr2, cr3 := u.cr1.Get(), u.cr2.Get(), u.cr3.Get()
	if v, ok := ctl.Enabled.Get(); ok {
		cr1 = mmio.Replace(cr1, b2u(v), 1, cr1UE)
	}
	if v, ok := ctl.ParityControl.Get(); ok {
		cr1 = mmio.Replace(cr1, b2u(v), 1, cr1PCE)
	}
	if v, ok := ctl.Transmitter.Get(); ok {
		cr1 = mmio.Replace(cr1, b2u(v), 1, cr1TE)
	}
	if v, ok := ctl.WordLength.Get(); ok {
		cr1 = mmio.Replace(cr1, uint32(v), 1, cr1M)
	}
	if v, ok := ctl.StopBits.Get(); ok {
		cr2 = mmio.Replace(cr2, uint32(v), cr2STOPMask, cr2STOP)
	}
	if v, ok := ctl.DMATransmitter.Get(); ok {
		cr3 = mmio.Replace(cr3, b2u(v), 1, cr3DMAT)
	}
	u.cr2.Set(cr2)
	u.cr3.Set(cr3)
	u.cr1.Set(cr1)
}

// SetData writes one byte to the data register.
func (u *USART) SetData(b byte) {
	u.dr.Set(uint32(b))
}

// DataRegisterAddress is the DMA destination for transmit transfers.
func (u *USART) DataRegisterAddress() uint32 {
	return uint32(u.dr.Addr())
}

func (u *USART) IsTransmitRegisterEmpty() bool {
	return u.sr.HasBits(1 << srTXE)
}

func (u *USART) IsTransmissionComplete() bool {
	return u.sr.HasBits(1 << srTC)
}

// ClearTransmissionComplete clears SR.TC. TC is rc_w0, so every other bit is written as 1
// and left untouched.
func (u *USART) ClearTransmissionComplete() {
	u.sr.Set(^uint32(1 << srTC))
	u.sr.Barrier()
}

// ByteWriter sends bytes one at a time by polling, without DMA. Use it for the boot
// banner and debug output; it must not be mixed with an in-flight DMA transfer.
type ByteWriter struct {
	u *USART
}

// NewByteWriter returns a polling writer on u.
func NewByteWriter(u *USART) ByteWriter {
	return ByteWriter{u: u}
}

// Write blocks until every byte of p has left the shift register.
func (w ByteWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		Wait(w.u.IsTransmitRegisterEmpty)
		w.u.SetData(b)
	}
	if len(p) > 0 {
		Wait(w.u.IsTransmissionComplete)
	}
	return len(p), nil
}

// WriteString is Write for strings.
func (w ByteWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
