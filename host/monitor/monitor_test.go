package monitor

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func collect(lines *[]Line) func(Line) {
	return func(l Line) { *lines = append(*lines, l) }
}

func TestRunClassifiesLines(t *testing.T) {
	m := New(DefaultExpect)
	stream := "Hello World\r\n" +
		"Hello World from DMA\r\n" +
		"Hello World from DMA\r\n" +
		"Hello WoHello World from DMA\r\n" +
		"Hello World from DMA\r\n"

	var lines []Line
	if err := m.Run(context.Background(), strings.NewReader(stream), collect(&lines)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(lines) != 5 {
		t.Fatalf("Expected 5 lines, got %d", len(lines))
	}
	if lines[3].Expected {
		t.Errorf("Corrupted line %q should not match", lines[3].Text)
	}
	if lines[0].Text != "Hello World" {
		t.Errorf("Expected CR stripped, got %q", lines[0].Text)
	}

	s := m.Stats()
	if s.Lines != 5 || s.Unexpected != 1 {
		t.Errorf("Expected 5 lines with 1 unexpected, got %d/%d", s.Lines, s.Unexpected)
	}
	if s.Matched["Hello World"] != 1 || s.Matched["Hello World from DMA"] != 3 {
		t.Errorf("Unexpected match counts %v", s.Matched)
	}
	if s.Bytes != len(stream) {
		t.Errorf("Expected %d bytes, got %d", len(stream), s.Bytes)
	}
}

func TestFeedAcrossChunks(t *testing.T) {
	m := New([]string{"abc"})
	var lines []Line

	m.Feed([]byte("a"), collect(&lines))
	m.Feed([]byte("bc\r"), collect(&lines))
	if len(lines) != 0 {
		t.Fatalf("Expected no complete line yet, got %v", lines)
	}
	m.Feed([]byte("\nab"), collect(&lines))
	if len(lines) != 1 || !lines[0].Expected {
		t.Fatalf("Expected one matching line, got %+v", lines)
	}
	m.Feed([]byte("c\n"), collect(&lines))
	if len(lines) != 2 || lines[1].Text != "abc" {
		t.Errorf("Expected the second line joined across chunks, got %+v", lines)
	}
}

func TestPartialLineAtEOF(t *testing.T) {
	m := New([]string{"done"})
	var lines []Line
	if err := m.Run(context.Background(), strings.NewReader("done\nhalf"), collect(&lines)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(lines) != 2 || lines[1].Text != "half" || lines[1].Expected {
		t.Errorf("Expected the trailing partial line reported as unexpected, got %+v", lines)
	}
}

func TestOverlongLine(t *testing.T) {
	m := New(nil)
	var lines []Line
	m.Feed([]byte(strings.Repeat("x", maxLine+1)), collect(&lines))

	if len(lines) != 1 || lines[0].Expected {
		t.Fatalf("Expected one unexpected line, got %d", len(lines))
	}
	if s := m.Stats(); s.Overruns != 1 {
		t.Errorf("Expected 1 overrun, got %d", s.Overruns)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestRunReadError(t *testing.T) {
	m := New(nil)
	if err := m.Run(context.Background(), errReader{}, nil); err == nil {
		t.Error("Expected the read error to be returned")
	}
}

func TestFollowUntilCancelled(t *testing.T) {
	m := New([]string{"tick"})
	m.Follow = true

	r, w := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan Line, 4)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, r, func(l Line) { got <- l }) }()

	w.Write([]byte("tick\r\n"))
	select {
	case l := <-got:
		if !l.Expected {
			t.Errorf("Expected %q to match", l.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("No line received")
	}

	cancel()
	w.Close() // unblocks the pending Read; EOF is ignored while following

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestStatsRate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Stats{Bytes: 11520, Started: start, Last: start.Add(time.Second)}
	if got := s.Rate(); got != 11520 {
		t.Errorf("Expected 11520 B/s, got %f", got)
	}
	if got := (Stats{}).Rate(); got != 0 {
		t.Errorf("Expected 0 for an empty session, got %f", got)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{"device": "/dev/ttyUSB1", "duration": "30s", "max_unexpected": 3}`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Device != "/dev/ttyUSB1" {
		t.Errorf("Expected device /dev/ttyUSB1, got %s", cfg.Device)
	}
	if cfg.Baud != 115200 {
		t.Errorf("Expected default baud 115200, got %d", cfg.Baud)
	}
	if time.Duration(cfg.Duration) != 30*time.Second {
		t.Errorf("Expected 30s, got %v", time.Duration(cfg.Duration))
	}
	if len(cfg.Expect) != 2 {
		t.Errorf("Expected the default expect list, got %v", cfg.Expect)
	}
	if cfg.MaxUnexpected != 3 {
		t.Errorf("Expected max_unexpected 3, got %d", cfg.MaxUnexpected)
	}

	if _, err := LoadConfig([]byte(`{"duration": "soon"}`)); err == nil {
		t.Error("Expected an error for a bad duration")
	}
}
