package core

import "stm32tx/mmio"

// DMA register word offsets. Each stream owns a six-word block starting at
// dmaStreamBase + dmaStreamStride*stream: CR, NDTR, PAR, M0AR, M1AR, FCR.
const (
	dmaLISR         = 0
	dmaHISR         = 1
	dmaLIFCR        = 2
	dmaHIFCR        = 3
	dmaStreamBase   = 4
	dmaStreamStride = 6
	dmaWords        = dmaStreamBase + dmaStreamStride*NumStreams

	sxCR   = 0
	sxNDTR = 1
	sxPAR  = 2
	sxM0AR = 3
)

// SxCR fields.
const (
	sxcrEN        = 0
	sxcrTCIE      = 4
	sxcrDIR       = 6
	sxcrDIRMask   = 0x3
	sxcrPINC      = 9
	sxcrMINC      = 10
	sxcrPSIZE     = 11
	sxcrMSIZE     = 13
	sxcrSIZEMask  = 0x3
	sxcrPL        = 16
	sxcrPLMask    = 0x3
	sxcrCHSEL     = 25
	sxcrCHSELMask = 0x7
)

// Per-stream interrupt flags within a 6-bit group of LISR/HISR.
const (
	flagFEIF  = 1 << 0
	flagDMEIF = 1 << 2
	flagTEIF  = 1 << 3
	flagHTIF  = 1 << 4
	flagTCIF  = 1 << 5

	// Every event flag of one stream; IFCR bits sit at the same positions.
	streamFlags = flagFEIF | flagDMEIF | flagTEIF | flagHTIF | flagTCIF
)

// NumStreams is the number of streams per DMA controller.
const NumStreams = 8

// Bit offset of each stream's flag group within its status half.
var streamFlagShift = [4]uint8{0, 6, 16, 22}

// Stream identifies a DMA stream, 0..7.
type Stream uint8

// Valid reports whether s names an existing stream.
func (s Stream) Valid() bool { return s < NumStreams }

// Direction is the SxCR.DIR encoding.
type Direction uint32

const (
	PeripheralToMemory Direction = 0b00
	MemoryToPeripheral Direction = 0b01
	MemoryToMemory     Direction = 0b10
)

// Priority is the SxCR.PL encoding.
type Priority uint32

const (
	PriorityLow      Priority = 0b00
	PriorityMedium   Priority = 0b01
	PriorityHigh     Priority = 0b10
	PriorityVeryHigh Priority = 0b11
)

// DataSize is the PSIZE/MSIZE encoding.
type DataSize uint32

const (
	SizeByte     DataSize = 0b00
	SizeHalfWord DataSize = 0b01
	SizeWord     DataSize = 0b10
)

// StreamConfig holds the SxCR fields to change. Unset fields keep their current value.
type StreamConfig struct {
	Direction           Opt[Direction]
	MemoryIncrement     Opt[bool]
	PeripheralIncrement Opt[bool]
	Channel             Opt[uint8]
	Priority            Opt[Priority]
	MemorySize          Opt[DataSize]
	PeripheralSize      Opt[DataSize]
	CompleteInterrupt   Opt[bool]
}

// DMA drives one DMA controller.
type DMA struct {
	blk mmio.Block
}

func NewDMA(bus mmio.Bus, base uintptr) *DMA {
	return &DMA{blk: mmio.NewBlock(bus, base, dmaWords)}
}

func (d *DMA) streamReg(s Stream, reg uint32) mmio.Reg {
	return d.blk.Reg(dmaStreamBase + dmaStreamStride*uint32(s) + reg)
}

// statusReg returns LISR for streams 0..3 and HISR for 4..7.
func (d *DMA) statusReg(s Stream) mmio.Reg {
	if s > 3 {
		return d.blk.Reg(dmaHISR)
	}
	return d.blk.Reg(dmaLISR)
}

func (d *DMA) clearReg(s Stream) mmio.Reg {
	if s > 3 {
		return d.blk.Reg(dmaHIFCR)
	}
	return d.blk.Reg(dmaLIFCR)
}

func (d *DMA) flags(s Stream) uint32 {
	return (d.statusReg(s).Get() >> streamFlagShift[s%4]) & streamFlags
}

// Enable sets SxCR.EN. Clear the stream's flags first or the previous transfer's
// completion will read as the new one's.
func (d *DMA) Enable(s Stream) {
	d.streamReg(s, sxCR).SetBit(sxcrEN)
	d.blk.Barrier()
}

// Disable clears SxCR.EN. The stream stops asynchronously; poll IsDisabled before
// touching its configuration.
func (d *DMA) Disable(s Stream) {
	d.streamReg(s, sxCR).ClearBit(sxcrEN)
	d.blk.Barrier()
}

// IsDisabled reports whether EN reads back as zero.
func (d *DMA) IsDisabled(s Stream) bool {
	return !d.streamReg(s, sxCR).HasBits(1 << sxcrEN)
}

// Configure applies cfg to SxCR in a single store. It is only legal while the stream is
// disabled.
func (d *DMA) Configure(s Stream, cfg StreamConfig) error {
	if !s.Valid() {
		return configErr("dma configure", ErrInvalidStream)
	}
	if ch, ok := cfg.Channel.Get(); ok && ch > sxcrCHSELMask {
		return configErr("dma configure", ErrInvalidChannel)
	}
	if !d.IsDisabled(s) {
		return configErr("dma configure", ErrTransferInFlight)
	}

	cr := d.streamReg(s, sxCR)
	v := cr.Get()
	if dir, ok := cfg.Direction.Get(); ok {
		v = mmio.Replace(v, uint32(dir), sxcrDIRMask, sxcrDIR)
	}
	if ch, ok := cfg.Channel.Get(); ok {
		v = mmio.Replace(v, uint32(ch), sxcrCHSELMask, sxcrCHSEL)
	}
	if inc, ok := cfg.MemoryIncrement.Get(); ok {
		v = mmio.Replace(v, b2u(inc), 1, sxcrMINC)
	}
	if inc, ok := cfg.PeripheralIncrement.Get(); ok {
		v = mmio.Replace(v, b2u(inc), 1, sxcrPINC)
	}
	if pl, ok := cfg.Priority.Get(); ok {
		v = mmio.Replace(v, uint32(pl), sxcrPLMask, sxcrPL)
	}
	if size, ok := cfg.MemorySize.Get(); ok {
		v = mmio.Replace(v, uint32(size), sxcrSIZEMask, sxcrMSIZE)
	}
	if size, ok := cfg.PeripheralSize.Get(); ok {
		v = mmio.Replace(v, uint32(size), sxcrSIZEMask, sxcrPSIZE)
	}
	if ie, ok := cfg.CompleteInterrupt.Get(); ok {
		v = mmio.Replace(v, b2u(ie), 1, sxcrTCIE)
	}
	cr.Set(v)
	return nil
}

// SetLength writes the number of items to transfer. Only effective while disabled.
func (d *DMA) SetLength(s Stream, length uint16) {
	d.streamReg(s, sxNDTR).Set(uint32(length))
}

// Remaining reads NDTR, which counts down as the transfer progresses.
func (d *DMA) Remaining(s Stream) uint16 {
	return uint16(d.streamReg(s, sxNDTR).Get())
}

func (d *DMA) SetPeripheralAddress(s Stream, addr uint32) {
	d.streamReg(s, sxPAR).Set(addr)
}

func (d *DMA) SetMemoryAddress(s Stream, addr uint32) {
	d.streamReg(s, sxM0AR).Set(addr)
}

// IsTransferComplete reports the stream's TCIF flag (bits 5, 11, 21, 27 of LISR/HISR).
func (d *DMA) IsTransferComplete(s Stream) bool {
	return d.flags(s)&flagTCIF != 0
}

// IsTransferError reports the stream's TEIF flag.
func (d *DMA) IsTransferError(s Stream) bool {
	return d.flags(s)&flagTEIF != 0
}

// ClearInterruptFlags clears every event flag of the stream through LIFCR/HIFCR.
func (d *DMA) ClearInterruptFlags(s Stream) {
	d.clearReg(s).Set(streamFlags << streamFlagShift[s%4])
	d.blk.Barrier()
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
