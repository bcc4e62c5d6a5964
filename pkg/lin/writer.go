package lin

// WriteHeader sends break, sync byte and the protected identifier of id
// and blocks until they are transmitted, which takes about 35 bit
// periods. Host only.
func (e *Engine) WriteHeader(id byte) error {
	if e.role != RoleHost {
		return ErrRoleViolation
	}
	tx := e.config.Pins.TX
	if err := e.serial.End(); err != nil {
		return err
	}
	e.gpio.Configure(tx, PinOutput)
	e.gpio.Set(tx, Low)
	e.clock.Delay(e.bitPeriod * BreakBits)
	e.gpio.Set(tx, High)
	if err := e.serial.Begin(e.baud); err != nil {
		return err
	}
	e.clock.Delay(e.bitPeriod * BreakDelimiterBits)

	e.txBuf[0], e.txBuf[1] = SyncByte, ProtectedID(id)
	if _, err := e.serial.Write(e.txBuf[:2]); err != nil {
		return err
	}
	return e.serial.Flush()
}

// WriteData sends up to 8 data bytes followed by the classic checksum,
// and blocks until transmitted. It returns the number of data bytes sent.
func (e *Engine) WriteData(data []byte) (int, error) {
	if data == nil || len(data) > MaxDataLen {
		return 0, ErrInvalidArgument
	}
	sum := ClassicChecksum(data)
	n := 0
	for i := range data {
		if _, err := e.serial.Write(data[i : i+1]); err != nil {
			return n, err
		}
		e.clock.Delay(e.bitPeriod * InterByteBits)
		n++
	}
	e.txBuf[0] = sum
	if _, err := e.serial.Write(e.txBuf[:1]); err != nil {
		return n, err
	}
	return n, e.serial.Flush()
}
