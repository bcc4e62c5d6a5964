package lin

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// SyncBufferSize is the number of frame starts tracked ahead of parsing.
const SyncBufferSize = 8

// Pins assigns the GPIO lines used by the engine.
type Pins struct {
	RX Pin
	TX Pin
	CS Pin
}

// Config defines the configurations of an engine.
type Config struct {
	Baud int
	// LinVersion documents the intended LIN revision:
	// 10, 11, 12, 13, 20, 21 or 22. It doesn't change behavior.
	LinVersion int
	// FrameBufferSize is the capacity of the received byte buffer.
	FrameBufferSize int
	Pins            Pins
}

var defaultConfig = Config{
	Baud:            19200,
	LinVersion:      13,
	FrameBufferSize: 64,
	Pins:            Pins{RX: 0, TX: 1, CS: 2},
}

var linVersions = map[int]bool{10: true, 11: true, 12: true, 13: true, 20: true, 21: true, 22: true}

func init() {
	if val := os.Getenv("LIN_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.Baud = baud
		}
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "LIN baud rate (1-20000).")
	flag.IntVar(&defaultConfig.LinVersion, "lin-version", defaultConfig.LinVersion, "LIN specification version: 10, 11, 12, 13, 20, 21, 22.")
	flag.IntVar(&defaultConfig.FrameBufferSize, "frame-buffer", defaultConfig.FrameBufferSize, "Receive frame buffer size in bytes.")
	flag.Var((*pinValue)(&defaultConfig.Pins.RX), "pin-rx", "RX sense pin.")
	flag.Var((*pinValue)(&defaultConfig.Pins.TX), "pin-tx", "TX pin, -1 if not connected.")
	flag.Var((*pinValue)(&defaultConfig.Pins.CS), "pin-cs", "Transceiver chip select pin.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Baud <= 0 || c.Baud > 20000 {
		return fmt.Errorf("%w: baud %d out of range 1-20000", ErrInvalidArgument, c.Baud)
	}
	if !linVersions[c.LinVersion] {
		return fmt.Errorf("%w: unknown LIN version %d", ErrInvalidArgument, c.LinVersion)
	}
	if c.FrameBufferSize < 3 {
		return fmt.Errorf("%w: frame buffer must hold at least 3 bytes", ErrInvalidArgument)
	}
	return nil
}

type pinValue Pin

func (p *pinValue) String() string {
	return strconv.Itoa(int(*p))
}

func (p *pinValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*p = pinValue(n)
	return nil
}
