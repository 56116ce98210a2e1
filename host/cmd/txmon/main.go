// Command txmon watches the board's USART3 output and reports every line that is not
// one of the messages the firmware sends.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/shlex"
	"github.com/mattn/go-colorable"

	"stm32tx/host/monitor"
	"stm32tx/host/serial"
)

const (
	colorReset = "\x1b[0m"
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
	colorDim   = "\x1b[2m"
)

var (
	configPath = flag.String("config", "", "JSON session config (flags override it)")
	device     = flag.String("device", "", "Serial device path (default /dev/ttyACM0)")
	baud       = flag.Int("baud", 0, "Baud rate (default 115200)")
	expect     = flag.String("expect", "", `Expected lines, shell-quoted (default '"Hello World" "Hello World from DMA"')`)
	duration   = flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	maxBad     = flag.Int("max-unexpected", 0, "Fail after this many unexpected lines (0 = never)")
	verbose    = flag.Bool("verbose", false, "Print matching lines too")
	noColor    = flag.Bool("no-color", false, "Disable coloured output")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	var out io.Writer = colorable.NewColorableStdout()
	if *noColor {
		out = colorable.NewNonColorable(os.Stdout)
	}

	ok, err := run(cfg, out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

// loadConfig merges the optional config file with the command line.
func loadConfig() (*monitor.Config, error) {
	cfg := monitor.DefaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if cfg, err = monitor.LoadConfig(data); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", *configPath, err)
		}
	}

	if *device != "" {
		cfg.Device = *device
	}
	if *baud != 0 {
		cfg.Baud = *baud
	}
	if *expect != "" {
		lines, err := shlex.Split(*expect)
		if err != nil {
			return nil, fmt.Errorf("failed to parse -expect: %w", err)
		}
		cfg.Expect = lines
	}
	if *duration != 0 {
		cfg.Duration = monitor.Duration(*duration)
	}
	if *maxBad != 0 {
		cfg.MaxUnexpected = *maxBad
	}
	return cfg, nil
}

func run(cfg *monitor.Config, out io.Writer) (bool, error) {
	m := monitor.New(cfg.Expect)

	fmt.Fprintf(out, "Listening on %s at %d baud...\n", cfg.Device, cfg.Baud)
	err := m.ConnectWithConfig(&serial.Config{
		Device:      cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return false, err
	}
	defer m.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if d := time.Duration(cfg.Duration); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	ctx, fail := context.WithCancel(ctx)
	defer fail()

	unexpected := 0
	err = m.Listen(ctx, func(l monitor.Line) {
		switch {
		case !l.Expected:
			unexpected++
			fmt.Fprintf(out, "%s%s %q%s\n", colorRed, l.At.Format("15:04:05.000"), l.Text, colorReset)
			if cfg.MaxUnexpected > 0 && unexpected >= cfg.MaxUnexpected {
				fail()
			}
		case *verbose:
			fmt.Fprintf(out, "%s%s %s%s\n", colorDim, l.At.Format("15:04:05.000"), l.Text, colorReset)
		}
	})
	if err != nil {
		return false, err
	}

	s := m.Stats()
	printSummary(out, cfg, s)
	return cfg.MaxUnexpected == 0 || s.Unexpected < cfg.MaxUnexpected, nil
}

func printSummary(out io.Writer, cfg *monitor.Config, s monitor.Stats) {
	color := colorGreen
	if s.Unexpected > 0 {
		color = colorRed
	}
	fmt.Fprintf(out, "\n%s%d lines, %d unexpected, %d overruns%s\n", color, s.Lines, s.Unexpected, s.Overruns, colorReset)
	for _, e := range cfg.Expect {
		fmt.Fprintf(out, "  %-24q %d\n", e, s.Matched[e])
	}
	fmt.Fprintf(out, "  %d bytes, %.0f B/s\n", s.Bytes, s.Rate())
}
