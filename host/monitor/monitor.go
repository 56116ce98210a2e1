// Package monitor reads the board's serial output and checks every line against the
// messages the firmware is known to send.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"stm32tx/host/serial"
)

// maxLine bounds a single line. Anything longer without a newline is reported as
// corruption and the buffer restarts.
const maxLine = 4096

// Line is one received line with its line ending removed.
type Line struct {
	Text     string
	Expected bool
	At       time.Time
}

// Stats summarises a monitoring session.
type Stats struct {
	Bytes      int
	Lines      int
	Unexpected int
	Overruns   int
	Matched    map[string]int
	Started    time.Time
	Last       time.Time
}

// Rate returns received bytes per second over the session.
func (s Stats) Rate() float64 {
	d := s.Last.Sub(s.Started).Seconds()
	if d <= 0 {
		return 0
	}
	return float64(s.Bytes) / d
}

// Monitor splits a byte stream into lines and classifies them.
type Monitor struct {
	expect map[string]bool

	// Follow keeps reading past io.EOF until the context ends. Serial ports with a read
	// timeout report an idle line that way.
	Follow bool

	port      serial.Port
	connected bool

	mu    sync.Mutex
	stats Stats
	buf   []byte
	now   func() time.Time
}

// New creates a monitor accepting the given messages.
func New(expect []string) *Monitor {
	m := &Monitor{
		expect: make(map[string]bool, len(expect)),
		now:    time.Now,
	}
	for _, e := range expect {
		m.expect[e] = true
	}
	m.stats.Matched = make(map[string]int, len(expect))
	return m
}

// Connect opens the board's serial port with default settings at baud.
func (m *Monitor) Connect(device string, baud int) error {
	cfg := serial.DefaultConfig(device)
	if baud > 0 {
		cfg.Baud = baud
	}
	return m.ConnectWithConfig(cfg)
}

// ConnectWithConfig opens the serial port described by cfg and drops anything already
// buffered.
func (m *Monitor) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return fmt.Errorf("failed to flush serial port: %w", err)
	}

	m.port = port
	m.connected = true
	m.Follow = true
	return nil
}

// Close closes the serial port, if one is open.
func (m *Monitor) Close() error {
	m.connected = false
	if m.port != nil {
		return m.port.Close()
	}
	return nil
}

// IsConnected returns whether a serial port is open
func (m *Monitor) IsConnected() bool {
	return m.connected
}

// Listen runs Run on the connected serial port.
func (m *Monitor) Listen(ctx context.Context, fn func(Line)) error {
	if !m.connected {
		return fmt.Errorf("not connected")
	}
	return m.Run(ctx, m.port, fn)
}

// Run reads r until it ends or ctx is cancelled, calling fn for every complete line.
// A trailing partial line is reported when r ends. Cancellation is not an error.
func (m *Monitor) Run(ctx context.Context, r io.Reader, fn func(Line)) error {
	m.mu.Lock()
	if m.stats.Started.IsZero() {
		m.stats.Started = m.now()
	}
	m.mu.Unlock()

	chunk := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := r.Read(chunk)
		if n > 0 {
			m.Feed(chunk[:n], fn)
		}

		switch {
		case err == nil || (errors.Is(err, io.EOF) && m.Follow):
			if n == 0 {
				// Idle line; give the context a chance to end.
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(10 * time.Millisecond):
				}
			}
		case errors.Is(err, io.EOF):
			m.flushPartial(fn)
			return nil
		default:
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

// Feed processes received bytes. It may be called directly when bytes arrive from
// somewhere other than Run.
func (m *Monitor) Feed(p []byte, fn func(Line)) {
	m.mu.Lock()
	m.stats.Bytes += len(p)
	m.stats.Last = m.now()

	var lines []Line
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			m.buf = append(m.buf, p...)
			if len(m.buf) > maxLine {
				m.stats.Overruns++
				lines = append(lines, m.classify(m.buf))
				m.buf = m.buf[:0]
			}
			break
		}
		m.buf = append(m.buf, p[:i]...)
		lines = append(lines, m.classify(m.buf))
		m.buf = m.buf[:0]
		p = p[i+1:]
	}
	m.mu.Unlock()

	if fn != nil {
		for _, l := range lines {
			fn(l)
		}
	}
}

func (m *Monitor) flushPartial(fn func(Line)) {
	m.mu.Lock()
	if len(m.buf) == 0 {
		m.mu.Unlock()
		return
	}
	l := m.classify(m.buf)
	m.buf = m.buf[:0]
	m.mu.Unlock()

	if fn != nil {
		fn(l)
	}
}

// classify must be called with mu held.
func (m *Monitor) classify(raw []byte) Line {
	text := string(bytes.TrimRight(raw, "\r"))
	l := Line{Text: text, Expected: m.expect[text], At: m.now()}
	m.stats.Lines++
	if l.Expected {
		m.stats.Matched[text]++
	} else {
		m.stats.Unexpected++
	}
	return l
}

// Stats returns a snapshot of the session counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	s.Matched = make(map[string]int, len(m.stats.Matched))
	for k, v := range m.stats.Matched {
		s.Matched[k] = v
	}
	return s
}
