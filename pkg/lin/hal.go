package lin

import "time"

// Level is the logic level of a line.
type Level bool

// Line levels. On the LIN bus Low is dominant and High is recessive.
const (
	Low  Level = false
	High Level = true
)

// String implements fmt.Stringer.
func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Pin identifies a GPIO line.
type Pin int

// NoPin marks an unconnected line.
const NoPin Pin = -1

// PinMode is the direction of a GPIO line.
type PinMode int

// Pin modes.
const (
	PinInput PinMode = iota
	PinInputPullup
	PinOutput
)

// Serial is the UART the engine exchanges bytes through.
type Serial interface {
	// Begin (re)starts the port at baud.
	Begin(baud int) error
	// End stops the port so the TX line can be driven as GPIO.
	End() error
	// Buffered returns the number of received bytes ready to read.
	Buffered() int
	// ReadByte reads one received byte without blocking.
	ReadByte() (byte, error)
	// Write queues bytes for transmission.
	Write(p []byte) (int, error)
	// Flush blocks until all queued bytes are on the wire.
	Flush() error
}

// GPIO drives and samples digital lines.
type GPIO interface {
	Configure(pin Pin, mode PinMode)
	Set(pin Pin, level Level)
	Get(pin Pin) Level
}

// Clock is a monotonic time source with a busy-delay primitive.
type Clock interface {
	// Now returns the time elapsed since an arbitrary fixed origin.
	Now() time.Duration
	// Delay blocks for d.
	Delay(d time.Duration)
}
