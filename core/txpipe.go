package core

import "unsafe"

// MaxTransferLength is the largest NDTR value.
const MaxTransferLength = 0xFFFF

// TxPipe accumulates bytes into a fixed buffer and sends them to a USART with one-shot
// memory-to-peripheral DMA transfers.
//
// Flushing consumes the buffer: the cursor returns to zero and the bytes stay in place
// for the DMA engine to read. Until that transfer completes Write accepts nothing, so
// data still being read is never overwritten.
type TxPipe struct {
	usart  *USART
	dma    *DMA
	stream Stream
	cfg    StreamConfig

	buf    []byte
	cursor int
	armed  bool
}

// NewTxPipe builds a pipeline sending buf-sized transfers from buf to u over stream on
// channel. The pipeline owns buf from now on; it must stay allocated at a fixed address
// for as long as transfers run.
func NewTxPipe(u *USART, d *DMA, stream Stream, channel uint8, buf []byte) (*TxPipe, error) {
	if !stream.Valid() {
		return nil, configErr("tx pipe", ErrInvalidStream)
	}
	if channel > sxcrCHSELMask {
		return nil, configErr("tx pipe", ErrInvalidChannel)
	}
	if len(buf) == 0 || len(buf) > MaxTransferLength {
		return nil, configErr("tx pipe", ErrTransferTooLong)
	}
	return &TxPipe{
		usart:  u,
		dma:    d,
		stream: stream,
		buf:    buf,
		cfg: StreamConfig{
			Direction:           Some(MemoryToPeripheral),
			MemoryIncrement:     Some(true),
			PeripheralIncrement: Some(false),
			Channel:             Some(channel),
			Priority:            Some(PriorityVeryHigh),
			MemorySize:          Some(SizeByte),
			PeripheralSize:      Some(SizeByte),
		},
	}, nil
}

// Capacity returns the buffer size.
func (p *TxPipe) Capacity() int {
	return len(p.buf)
}

// Remaining returns how many more bytes Write can accept before a flush.
func (p *TxPipe) Remaining() int {
	return len(p.buf) - p.cursor
}

// Buffered returns the number of bytes waiting for the next flush.
func (p *TxPipe) Buffered() int {
	return p.cursor
}

// BufferAddress is the DMA source address of the buffer.
func (p *TxPipe) BufferAddress() uint32 {
	return uint32(uintptr(unsafe.Pointer(&p.buf[0])))
}

// Write copies as much of b as fits. A short count comes with ErrBufferFull: flush and
// write the rest. While the previous transfer is still running nothing is accepted and
// the error is ErrTransferInFlight.
func (p *TxPipe) Write(b []byte) (int, error) {
	if p.inFlight() {
		return 0, ErrTransferInFlight
	}
	n := copy(p.buf[p.cursor:], b)
	p.cursor += n
	if n < len(b) {
		return n, ErrBufferFull
	}
	return n, nil
}

// Flush starts a DMA transfer of the buffered bytes and resets the cursor. An empty
// buffer is not sent. Flushing while the previous transfer runs returns
// ErrTransferInFlight and changes nothing.
func (p *TxPipe) Flush() error {
	if p.inFlight() {
		return ErrTransferInFlight
	}
	if p.cursor == 0 {
		return nil
	}
	u, d, s := p.usart, p.dma, p.stream

	u.ClearTransmissionComplete()
	d.Disable(s)
	Wait(func() bool { return d.IsDisabled(s) })
	// Stale flags would make the new transfer look complete as soon as it starts.
	d.ClearInterruptFlags(s)

	d.SetLength(s, uint16(p.cursor))
	d.SetMemoryAddress(s, p.BufferAddress())
	d.SetPeripheralAddress(s, u.DataRegisterAddress())
	if err := d.Configure(s, p.cfg); err != nil {
		return err
	}

	d.blk.Barrier()
	d.Enable(s)
	RecordTrace(EvtDMAFlush, d.streamReg(s, sxNDTR).Addr(), uint32(p.cursor))

	p.cursor = 0
	p.armed = true
	return nil
}

// IsTransmissionComplete reports whether the last flushed transfer is on the wire: the
// DMA stream has delivered every byte and the USART has shifted out the last one.
func (p *TxPipe) IsTransmissionComplete() bool {
	return p.usart.IsTransmissionComplete() && p.dma.IsTransferComplete(p.stream)
}

// IsTransferError reports a DMA transfer error on the pipeline's stream.
func (p *TxPipe) IsTransferError() bool {
	return p.dma.IsTransferError(p.stream)
}

func (p *TxPipe) inFlight() bool {
	return p.armed && !p.IsTransmissionComplete()
}

// Drain flushes whatever is buffered and blocks until it is on the wire.
func (p *TxPipe) Drain() error {
	Wait(func() bool { return !p.inFlight() })
	if p.cursor == 0 {
		return nil
	}
	if err := p.Flush(); err != nil {
		return err
	}
	Wait(p.IsTransmissionComplete)
	return nil
}

// Send writes b, flushing and waiting for completion each time the buffer fills.
// Bytes left in the buffer are sent by a later Flush or Drain.
func (p *TxPipe) Send(b []byte) error {
	for len(b) > 0 {
		Wait(func() bool { return !p.inFlight() })
		n, err := p.Write(b)
		b = b[n:]
		if err == nil {
			break
		}
		if err != ErrBufferFull {
			return err
		}
		if err := p.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WriteString is Write for strings.
func (p *TxPipe) WriteString(s string) (int, error) {
	return p.Write([]byte(s))
}
