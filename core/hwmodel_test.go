package core

import (
	"sync"
	"testing"

	"stm32tx/mmio"
)

// Absolute addresses used by the tests.
const (
	addrRCCCR      = RCCBase + rccCR*4
	addrRCCPLLCFGR = RCCBase + rccPLLCFGR*4
	addrRCCCFGR    = RCCBase + rccCFGR*4
	addrRCCCSR     = RCCBase + rccCSR*4
	addrRCCAPB1ENR = RCCBase + rccAPB1ENR*4
	addrPWRCR      = PWRBase + pwrCR*4
	addrFlashACR   = FlashBase + flashACR*4
	addrLISR       = DMA1Base + dmaLISR*4
	addrHISR       = DMA1Base + dmaHISR*4
	addrLIFCR      = DMA1Base + dmaLIFCR*4
	addrHIFCR      = DMA1Base + dmaHIFCR*4
	addrUSARTSR    = USART3Base + usartSR*4
	addrUSARTDR    = USART3Base + usartDR*4
	addrUSARTBRR   = USART3Base + usartBRR*4
	addrUSARTCR1   = USART3Base + usartCR1*4
	addrUSARTCR2   = USART3Base + usartCR2*4
	addrUSARTCR3   = USART3Base + usartCR3*4
	addrEXTIPR     = EXTIBase + extiPR*4
	addrIWDGKR     = IWDGBase + iwdgKR*4
)

func addrStreamReg(s Stream, reg uint32) uintptr {
	return DMA1Base + uintptr(dmaStreamBase+dmaStreamStride*uint32(s)+reg)*4
}

func addrGPIO(port GPIOPort, reg uint32) uintptr {
	return GPIOBase(port) + uintptr(reg)*4
}

// chipModel installs the hardware side effects the drivers wait on: oscillators become
// ready as soon as they are enabled, SWS follows SW, event flags obey their rc_w0/rc_w1
// semantics and the USART shifts a byte out instantly.
type chipModel struct {
	mem *mmio.Memory

	mu   sync.Mutex
	wire []byte
}

func newChipModel(t *testing.T) *chipModel {
	t.Helper()
	ResetTrace()

	m := &chipModel{mem: mmio.NewMemory()}
	mem := m.mem

	// Reset values: HSI on and ready, TXE and TC set.
	mem.Poke(addrRCCCR, 1<<crHSION|1<<crHSIRDY)
	mem.Poke(addrUSARTSR, 1<<srTXE|1<<srTC)

	const crReady = 1<<crHSIRDY | 1<<crHSERDY | 1<<crPLLRDY
	mem.OnWrite(addrRCCCR, func(old, w uint32) uint32 {
		var rdy uint32
		if w&(1<<crHSION) != 0 {
			rdy |= 1 << crHSIRDY
		}
		if w&(1<<crHSEON) != 0 {
			rdy |= 1 << crHSERDY
		}
		if w&(1<<crPLLON) != 0 {
			rdy |= 1 << crPLLRDY
		}
		return w&^crReady | rdy
	})
	mem.OnWrite(addrRCCCFGR, func(old, w uint32) uint32 {
		return mmio.Replace(w, w&cfgrSWMask, cfgrSWMask, cfgrSWS)
	})
	mem.OnWrite(addrRCCCSR, func(old, w uint32) uint32 {
		if w&(1<<csrLSION) != 0 {
			return w | 1<<csrLSIRDY
		}
		return w &^ (1 << csrLSIRDY)
	})

	// IFCR bits clear the matching ISR bits and read back as zero.
	mem.OnWrite(addrLIFCR, func(old, w uint32) uint32 {
		mem.Update(addrLISR, func(v uint32) uint32 { return v &^ w })
		return 0
	})
	mem.OnWrite(addrHIFCR, func(old, w uint32) uint32 {
		mem.Update(addrHISR, func(v uint32) uint32 { return v &^ w })
		return 0
	})

	const rcw0 = 1<<9 | 1<<8 | 1<<srTC | 1<<5 // CTS, LBD, TC, RXNE
	mem.OnWrite(addrUSARTSR, func(old, w uint32) uint32 {
		return old&^rcw0 | old&w&rcw0
	})
	mem.OnWrite(addrUSARTDR, func(old, w uint32) uint32 {
		m.mu.Lock()
		m.wire = append(m.wire, byte(w))
		m.mu.Unlock()
		mem.Update(addrUSARTSR, func(v uint32) uint32 { return v | 1<<srTXE | 1<<srTC })
		return w
	})

	mem.OnWrite(addrEXTIPR, func(old, w uint32) uint32 { return old &^ w })

	for _, port := range []GPIOPort{PortB, PortC, PortD} {
		odr := addrGPIO(port, gpioODR)
		mem.OnWrite(addrGPIO(port, gpioBSRR), func(old, w uint32) uint32 {
			mem.Update(odr, func(v uint32) uint32 { return v&^(w>>16) | w&0xFFFF })
			return 0
		})
	}
	return m
}

// completeTransfer plays the end of a DMA transfer on stream: EN drops, TCIF rises and
// the USART reports the last byte shifted out.
func (m *chipModel) completeTransfer(s Stream) {
	m.completeDMA(s)
	m.completeUSART()
}

func (m *chipModel) completeDMA(s Stream) {
	m.mem.Update(addrStreamReg(s, sxCR), func(v uint32) uint32 { return v &^ (1 << sxcrEN) })
	status := uintptr(addrLISR)
	if s > 3 {
		status = addrHISR
	}
	m.mem.Update(status, func(v uint32) uint32 { return v | flagTCIF<<streamFlagShift[s%4] })
}

func (m *chipModel) completeUSART() {
	m.mem.Update(addrUSARTSR, func(v uint32) uint32 { return v | 1<<srTC })
}

func (m *chipModel) wireBytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.wire...)
}

// indexOf returns the position in trace of the first store to addr matching pred, or -1.
func indexOf(trace []mmio.Access, addr uintptr, pred func(uint32) bool) int {
	for i, a := range trace {
		if !a.Barrier && a.Addr == addr && (pred == nil || pred(a.Value)) {
			return i
		}
	}
	return -1
}

// indicesOf returns every position in trace of stores to addr matching pred.
func indicesOf(trace []mmio.Access, addr uintptr, pred func(uint32) bool) []int {
	var out []int
	for i, a := range trace {
		if !a.Barrier && a.Addr == addr && (pred == nil || pred(a.Value)) {
			out = append(out, i)
		}
	}
	return out
}
