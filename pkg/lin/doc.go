// Package lin provides a LIN bus protocol engine over a generic UART.
package lin

// LIN is a single-master serial bus. The Host drives every frame header:
// a break pulse, the sync byte 0x55 and a protected identifier. A Node
// recovers frame boundaries from the continuous byte stream by timing the
// dominant break pulse on its RX line, then validates the header by
// identifier parity and the payload by checksum.
//
// The engine has no internal goroutine. Every operation runs on the
// caller's goroutine, and the only blocking points are WaitForData
// (bounded by the worst-case frame duration) and the fixed delays of
// host transmission. Serial port, GPIO lines and the monotonic clock are
// injected through the Serial, GPIO and Clock interfaces.
//
// Wire format:
//
//	break (13 bits dominant) | delimiter (2 bits) | 0x55 | PID | data 0..8 | checksum
