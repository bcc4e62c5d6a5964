package lin

// ReadID consumes the sync byte and protected identifier of the next
// frame and returns the 6-bit identifier. It must precede ReadData for
// the same frame. At least one byte past the identifier must have been
// received.
func (e *Engine) ReadID() (byte, error) {
	return e.readHeader(3)
}

// ReadHeader is ReadID for a responder. It only needs the sync byte and
// the protected identifier, so a Node can answer a header before any
// response byte is on the bus.
func (e *Engine) ReadHeader() (byte, error) {
	return e.readHeader(2)
}

func (e *Engine) readHeader(min int) (byte, error) {
	if e.frames.Len() < min {
		return 0, ErrNotReady
	}
	if e.breakCount > 0 {
		e.breakCount--
	}
	if b, _ := e.frames.Read(); b != SyncByte {
		return 0, ErrSyncMismatch
	}
	e.syncs.Read()
	pid, _ := e.frames.Read()
	if !ParityOK(pid) {
		return 0, ErrParityMismatch
	}
	return pid & IDMask, nil
}

// ReadData consumes n data bytes and the checksum byte, verifies the
// classic checksum and copies the payload into dst.
func (e *Engine) ReadData(dst []byte, n int) (int, error) {
	if dst == nil || n < 0 || n > MaxDataLen || n > len(dst) {
		return 0, ErrInvalidArgument
	}
	if e.frames.Len() <= n {
		return 0, ErrNotEnoughData
	}
	var buf [MaxDataLen + 1]byte
	for i := 0; i <= n; i++ {
		buf[i], _ = e.frames.Read()
	}
	if ClassicChecksum(buf[:n]) != buf[n] {
		return 0, ErrChecksumMismatch
	}
	return copy(dst, buf[:n]), nil
}
