//go:build tinygo && stm32f4

package main

import (
	"runtime/interrupt"

	"stm32tx/core"
	"stm32tx/mmio"
)

const (
	greeting    = "Hello World\r\n"
	dmaGreeting = "Hello World from DMA\r\n"
)

var (
	// DMA source buffer; statically allocated so its address never changes.
	txBuf [core.TxBufferSize]byte

	// board is reachable from the interrupt trampolines below, which cannot capture.
	// Nothing else reads it.
	board *core.Board

	// Set with -ldflags="-X main.debug=1" to dump the bring-up trace on the console.
	debug string
)

func main() {
	b, err := core.NewBoard(mmio.MMIO{}, txBuf[:])
	if err != nil {
		halt()
	}
	board = b

	interrupt.New(core.IRQ_EXTI15_10, buttonISR)
	interrupt.New(core.IRQ_TIM7, blinkISR)
	interrupt.New(core.IRQ_TIM6_DAC, feedISR)

	if err := b.Init(core.DefaultBoardConfig()); err != nil {
		halt()
	}

	if debug != "" {
		core.SetDebugWriter(func(s string) {
			b.Console.WriteString(s)
			b.Console.WriteString("\r\n")
		})
		core.SetDebugEnabled(true)
		core.DumpTrace()
	}

	b.Greet(greeting)

	msg := []byte(dmaGreeting)
	for {
		if err := b.Step(msg); err != nil {
			halt()
		}
	}
}

func buttonISR(interrupt.Interrupt) { board.ButtonHandler() }
func blinkISR(interrupt.Interrupt) { board.BlinkHandler() }
func feedISR(interrupt.Interrupt) { board.FeedHandler() }

// halt stops on a fault. The watchdog is the only way out once it has been started.
func halt() {
	for {
	}
}
