package lin

import "time"

// Bit counts of the timed parts of a frame.
const (
	// BreakBits is the dominant length of a generated break.
	BreakBits = 13
	// BreakDelimiterBits is the recessive gap after a break.
	BreakDelimiterBits = 2
	// BreakThresholdBits is the dominant length a Node must exceed
	// to accept a pulse as a break.
	BreakThresholdBits = 11
	// InterByteBits is the spacing inserted after each data byte.
	InterByteBits = 2
	// MaxFrameBits is the worst-case frame length: break and delimiter,
	// header and pause, 8 data bytes and checksum with inter-byte space.
	MaxFrameBits = BreakBits + BreakDelimiterBits + 20 + 5 + 90
)

// BitPeriod returns the duration of one bit, truncated to whole
// microseconds.
func BitPeriod(baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	return time.Duration(1000000/baud) * time.Microsecond
}

// MaxFrameDuration is how long a complete frame may take at baud.
func MaxFrameDuration(baud int) time.Duration {
	return BitPeriod(baud) * MaxFrameBits
}
