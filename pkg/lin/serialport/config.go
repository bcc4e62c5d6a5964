package serialport

import (
	"flag"
	"os"
	"time"
)

// Config defines the serial port to open.
type Config struct {
	Name        string
	ReadTimeout time.Duration
	// RXBufferSize is the capacity of the receive buffer between the
	// reader goroutine and the engine.
	RXBufferSize int
	// Echo is set when the transceiver loops transmitted bytes back to RX,
	// as most LIN transceivers do.
	Echo bool
}

var defaultConfig = Config{
	Name:         "/dev/ttyUSB0",
	ReadTimeout:  10 * time.Millisecond,
	RXBufferSize: 256,
	Echo:         true,
}

func init() {
	if val := os.Getenv("LIN_PORT"); val != "" {
		defaultConfig.Name = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Name, "port", defaultConfig.Name, "Serial port of the LIN transceiver.")
	flag.DurationVar(&defaultConfig.ReadTimeout, "port-read-timeout", defaultConfig.ReadTimeout, "Serial port read timeout.")
	flag.BoolVar(&defaultConfig.Echo, "port-echo", defaultConfig.Echo, "Transceiver echoes transmitted bytes.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}
