package lin

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady indicates not enough bytes are buffered to read a header.
	ErrNotReady = errors.New("not ready")
	// ErrSyncMismatch indicates the byte after a break is not 0x55,
	// usually a baud rate mismatch.
	ErrSyncMismatch = errors.New("sync mismatch")
	// ErrParityMismatch indicates the protected identifier failed parity check.
	ErrParityMismatch = errors.New("parity mismatch")
	// ErrChecksumMismatch indicates the payload failed checksum verification.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrNotEnoughData indicates fewer bytes are buffered than the payload needs.
	ErrNotEnoughData = errors.New("not enough data")
	// ErrTimeout indicates the frame didn't complete in time.
	ErrTimeout = errors.New("timeout")
	// ErrRoleViolation indicates a Host-only operation was invoked on a Node.
	ErrRoleViolation = errors.New("role violation")
	// ErrInvalidArgument indicates a nil buffer or an out of range value.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBufferOverflow indicates a write to a full ring buffer.
	ErrBufferOverflow = errors.New("buffer overflow")
	// ErrBufferEmpty indicates a read from an empty ring buffer.
	ErrBufferEmpty = errors.New("buffer empty")
)

// FrameError wraps a failure of a specific frame.
type FrameError struct {
	ID  byte
	Err error
}

// Error implements error.
func (e *FrameError) Error() string {
	return fmt.Sprintf("frame 0x%02x: %v", e.ID, e.Err)
}

// Unwrap returns the cause.
func (e *FrameError) Unwrap() error {
	return e.Err
}

// Code maps an error to the status code of the classic LIN driver API:
// ReadID returns -1, -3, -4; ReadData returns -1, -2, -3;
// WriteHeader and WriteData return -1.
func Code(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotEnoughData):
		return -2
	case errors.Is(err, ErrSyncMismatch), errors.Is(err, ErrChecksumMismatch):
		return -3
	case errors.Is(err, ErrParityMismatch):
		return -4
	}
	return -1
}
