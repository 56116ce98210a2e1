package core

// STM32F439 peripheral base addresses (RM0090 §2.3).
const (
	TIM6Base   = 0x40001000
	TIM7Base   = 0x40001400
	IWDGBase   = 0x40003000
	USART3Base = 0x40004800
	PWRBase    = 0x40007000
	SYSCFGBase = 0x40013800
	EXTIBase   = 0x40013C00
	GPIOABase  = 0x40020000
	RCCBase    = 0x40023800
	FlashBase  = 0x40023C00
	DMA1Base   = 0x40026000
	DMA2Base   = 0x40026400
	NVICBase   = 0xE000E100 // NVIC_ISER0

	gpioStride = 0x400
)

// Interrupt numbers used by the board.
const (
	IRQ_EXTI15_10 = 40
	IRQ_TIM6_DAC  = 54
	IRQ_TIM7      = 55
)

// HSIFreq is the frequency of the internal high-speed oscillator.
const HSIFreq = 16_000_000

// GPIOBase returns the base address of a GPIO port.
func GPIOBase(port GPIOPort) uintptr {
	return GPIOABase + uintptr(port)*gpioStride
}
