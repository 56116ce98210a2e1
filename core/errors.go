package core

import "errors"

var (
	// Clock tree configuration
	ErrInvalidPLL       = errors.New("invalid PLL factors")
	ErrVCOInput         = errors.New("VCO input frequency out of range")
	ErrVCOOutput        = errors.New("VCO output frequency out of range")
	ErrInvalidPrescaler = errors.New("invalid bus prescaler")
	ErrClockTooFast     = errors.New("clock above rated maximum")
	ErrFlashLatency     = errors.New("flash latency too low for HCLK")
	ErrVoltageScale     = errors.New("invalid voltage scale")
	ErrClockSource      = errors.New("invalid clock source")

	// Peripherals
	ErrInvalidStream  = errors.New("invalid DMA stream")
	ErrInvalidChannel = errors.New("invalid DMA channel")
	ErrInvalidBaud    = errors.New("invalid baud rate")

	// Transmit pipeline
	ErrBufferFull       = errors.New("transmit buffer full")
	ErrTransferInFlight = errors.New("DMA transfer in flight")
	ErrTransferTooLong  = errors.New("transfer longer than 65535 items")
)

// ConfigError ties a configuration error to the operation that rejected it.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(op string, err error) error {
	return &ConfigError{Op: op, Err: err}
}
