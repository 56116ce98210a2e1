package serial

import (
	"io"
)

// Port is the host end of the board's USART3 link.
// Implementations:
// - Native serial (github.com/tarm/serial), usually the ST-LINK virtual COM port
// - In-memory pipes in tests
type Port interface {
	io.ReadWriteCloser

	// Flush discards or pushes out any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate; must match the board's USART3 setting
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the board's default link settings: 115200 baud, 8N1.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 200,
	}
}
