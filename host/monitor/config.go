package monitor

import (
	"encoding/json"
	"time"
)

// Config describes a monitoring session.
type Config struct {
	Device      string   `json:"device"`
	Baud        int      `json:"baud"`
	ReadTimeout int      `json:"read_timeout_ms"`
	Expect      []string `json:"expect"`

	// Duration stops the session after this long; zero runs until interrupted.
	Duration Duration `json:"duration"`

	// MaxUnexpected fails the session once this many corrupt lines have been seen;
	// zero never fails.
	MaxUnexpected int `json:"max_unexpected"`
}

// Duration is a time.Duration that unmarshals from strings such as "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultExpect lists the lines the firmware sends: the polled greeting and the DMA
// message.
var DefaultExpect = []string{"Hello World", "Hello World from DMA"}

// LoadConfig parses a JSON configuration and fills in defaults
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	applyDefaults(&config)

	return &config, nil
}

// DefaultConfig returns the settings for a Nucleo board on its ST-LINK port.
func DefaultConfig() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Device == "" {
		config.Device = "/dev/ttyACM0"
	}
	if config.Baud == 0 {
		config.Baud = 115200
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 200
	}
	if len(config.Expect) == 0 {
		config.Expect = append([]string(nil), DefaultExpect...)
	}
}
