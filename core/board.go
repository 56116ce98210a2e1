package core

import (
	"stm32tx/mmio"
	"stm32tx/x/mathx"
)

// Board wiring on a Nucleo-F439ZI.
const (
	LEDGreen  Pin = 0  // PB0, toggled by the button
	LEDBlue   Pin = 7  // PB7, lit once Init completes
	LEDRed    Pin = 14 // PB14, blinked by TIM7
	UserBtn   Pin = 13 // PC13
	USART3_TX Pin = 8  // PD8
	USART3_RX Pin = 9  // PD9

	ButtonLine = uint8(UserBtn)

	// USART3_TX request on DMA1: stream 3, channel 4 (RM0090 table 42).
	TxStream  Stream = 3
	TxChannel uint8  = 4

	TxBufferSize = 1024
)

// BoardConfig collects the board's tunables.
type BoardConfig struct {
	Clock ClockConfig
	Baud  uint32

	BlinkHz uint32 // TIM7 update rate
	FeedHz  uint32 // TIM6 update rate, must beat the watchdog timeout

	WatchdogPrescaler uint8  // 0: /4 .. 6: /256 of the 32 kHz LSI
	WatchdogReload    uint16 // 0..0xFFF
}

// DefaultBoardConfig runs at 168 MHz, 115200 baud, blinks at 2 Hz and feeds a ~4 s
// watchdog at 100 Hz.
func DefaultBoardConfig() BoardConfig {
	return BoardConfig{
		Clock:             DefaultClockConfig(),
		Baud:              115200,
		BlinkHz:           2,
		FeedHz:            100,
		WatchdogPrescaler: 3,
		WatchdogReload:    0xFFF,
	}
}

func (c *BoardConfig) applyDefaults() {
	def := DefaultBoardConfig()
	if c.Baud == 0 {
		c.Baud = def.Baud
	}
	if c.BlinkHz == 0 {
		c.BlinkHz = def.BlinkHz
	}
	if c.FeedHz == 0 {
		c.FeedHz = def.FeedHz
	}
	if c.WatchdogReload == 0 {
		c.WatchdogReload = def.WatchdogReload
	}
	c.WatchdogPrescaler = mathx.Clamp(c.WatchdogPrescaler, 0, 6)
	c.WatchdogReload = mathx.Clamp(c.WatchdogReload, 1, iwdgReloadMask)
}

// Board owns one handle per peripheral instance. It is built once at startup and passed
// to whatever needs hardware; there are no package-level peripheral variables.
//
// Register ownership between execution contexts:
//   - main line: everything not listed below, including the whole DMA/USART3 path
//   - ButtonHandler: PB0 via GPIOB.BSRR, EXTI.PR bit 13
//   - BlinkHandler: PB14 via GPIOB.BSRR, TIM7.SR
//   - FeedHandler: IWDG.KR, TIM6.SR (Init writes KR only before TIM6 starts)
type Board struct {
	RCC      *RCC
	Power    *Power
	Flash    *Flash
	Clock    *ClockTree
	GPIOB    *GPIO
	GPIOC    *GPIO
	GPIOD    *GPIO
	NVIC     *NVIC
	SYSCFG   *SYSCFG
	EXTI     *EXTI
	TIM6     *BasicTimer
	TIM7     *BasicTimer
	Watchdog *Watchdog
	DMA1     *DMA
	USART3   *USART

	Console ByteWriter
	Tx      *TxPipe
}

// NewBoard binds every peripheral on bus. txBuf becomes the DMA transmit buffer.
func NewBoard(bus mmio.Bus, txBuf []byte) (*Board, error) {
	rcc := NewRCC(bus, RCCBase)
	pwr := NewPower(bus, PWRBase)
	flash := NewFlash(bus, FlashBase)
	usart := NewUSART(bus, USART3Base)
	dma := NewDMA(bus, DMA1Base)

	tx, err := NewTxPipe(usart, dma, TxStream, TxChannel, txBuf)
	if err != nil {
		return nil, err
	}

	return &Board{
		RCC:      rcc,
		Power:    pwr,
		Flash:    flash,
		Clock:    NewClockTree(rcc, pwr, flash),
		GPIOB:    NewGPIO(bus, GPIOBase(PortB)),
		GPIOC:    NewGPIO(bus, GPIOBase(PortC)),
		GPIOD:    NewGPIO(bus, GPIOBase(PortD)),
		NVIC:     NewNVIC(bus, NVICBase),
		SYSCFG:   NewSYSCFG(bus, SYSCFGBase),
		EXTI:     NewEXTI(bus, EXTIBase),
		TIM6:     NewBasicTimer(bus, TIM6Base),
		TIM7:     NewBasicTimer(bus, TIM7Base),
		Watchdog: NewWatchdog(bus, IWDGBase),
		DMA1:     dma,
		USART3:   usart,
		Console:  NewByteWriter(usart),
		Tx:       tx,
	}, nil
}

// Init brings up the clock tree and then every peripheral the application uses. Nothing
// is touched before the clock tree is settled.
func (b *Board) Init(cfg BoardConfig) error {
	cfg.applyDefaults()

	if err := b.Clock.Bringup(cfg.Clock); err != nil {
		return err
	}
	freqs := b.Clock.Frequencies()

	b.RCC.EnableGPIOPorts(PortB, PortC, PortD)
	b.RCC.EnableSYSCFG()
	b.RCC.EnableBasicTimers(TIM6, TIM7)
	b.RCC.EnableUSART(3)
	b.RCC.EnableDMA(1)

	b.GPIOB.SetPinsMode(ModeOutput, LEDGreen, LEDBlue, LEDRed)
	b.GPIOC.SetPinsMode(ModeInput, UserBtn)
	b.GPIOD.SetPinsMode(ModeAlternate, USART3_TX, USART3_RX)
	b.GPIOD.SetAlternateFunction(USART3_TX, AF7_USART1_2_3)
	b.GPIOD.SetAlternateFunction(USART3_RX, AF7_USART1_2_3)
	b.GPIOD.SetSpeed(USART3_TX, SpeedHigh)

	if err := b.USART3.SetBaud(freqs.PCLK1, cfg.Baud); err != nil {
		return err
	}
	b.USART3.Configure(Control{
		Enabled:        Some(true),
		ParityControl:  Some(false),
		Transmitter:    Some(true),
		WordLength:     Some(WordLength8),
		StopBits:       Some(StopBits1),
		DMATransmitter: Some(true),
	})

	// The unlock key opens PR/RLR until the next key write. Configure must finish before
	// FeedHandler can run, or its reload key relocks them mid-sequence.
	b.Watchdog.Start()
	b.Watchdog.Configure(cfg.WatchdogPrescaler, cfg.WatchdogReload)

	b.NVIC.EnableInterrupts(IRQ_EXTI15_10, IRQ_TIM7, IRQ_TIM6_DAC)

	b.SYSCFG.SetExternalInterruptSource(ButtonLine, PortC)
	b.EXTI.UnmaskInterrupt(ButtonLine)
	b.EXTI.EnableRisingTrigger(ButtonLine)

	timclk := timerClock(freqs.PCLK1, cfg.Clock.APB1)
	startTimer(b.TIM7, timclk, cfg.BlinkHz)
	startTimer(b.TIM6, timclk, cfg.FeedHz)

	b.GPIOB.SetPin(LEDBlue)
	DebugPrintln("[BOARD] init done, baud=" + utoa(cfg.Baud))
	return nil
}

// APB1 timers run at twice PCLK1 whenever the APB1 prescaler divides.
func timerClock(pclk1 uint32, apb1 APBPrescaler) uint32 {
	if apb1 == APBDiv1 {
		return pclk1
	}
	return pclk1 * 2
}

func startTimer(t *BasicTimer, clk, hz uint32) {
	psc, arr := TimerTicks(clk, hz)
	t.EnableUpdateInterrupt()
	t.SetPrescaler(psc)
	t.SetAutoReload(arr)
	t.Enable()
}

// ButtonHandler serves EXTI15_10: toggle the green LED.
func (b *Board) ButtonHandler() {
	b.GPIOB.TogglePin(LEDGreen)
	b.EXTI.ClearPending(ButtonLine)
}

// BlinkHandler serves TIM7: toggle the red LED.
func (b *Board) BlinkHandler() {
	b.GPIOB.TogglePin(LEDRed)
	b.TIM7.ClearStatus()
}

// FeedHandler serves TIM6: reload the watchdog. If the main line hangs with interrupts
// masked this stops running and the watchdog resets the chip.
func (b *Board) FeedHandler() {
	b.Watchdog.Feed()
	b.TIM6.ClearStatus()
}

// Greet sends msg over the polling console. Call it before the first DMA transfer.
func (b *Board) Greet(msg string) {
	b.Console.WriteString(msg)
}

// Step queues msg for DMA transmission, first flushing and waiting for the wire when
// the buffer cannot hold all of it. Messages are never split across transfers.
func (b *Board) Step(msg []byte) error {
	if len(msg) > b.Tx.Capacity() {
		return ErrBufferFull
	}
	if b.Tx.Remaining() < len(msg) {
		if err := b.Tx.Flush(); err != nil {
			return err
		}
		Wait(b.Tx.IsTransmissionComplete)
	}
	_, err := b.Tx.Write(msg)
	return err
}
