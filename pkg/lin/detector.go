package lin

import "github.com/golang/glog"

// Available polls the bus. On a Node it runs break detection, drains
// the serial port and returns the number of detected frame starts not yet
// consumed by ReadID. On a Host it returns the number of bytes queued by
// the serial port.
func (e *Engine) Available() int {
	if e.role == RoleHost {
		return e.serial.Buffered()
	}
	e.Drain()
	return e.breakCount
}

// DataAvailable returns the number of bytes in the frame buffer, which
// may span several frames.
func (e *Engine) DataAvailable() int {
	return e.frames.Len()
}

// Drain samples the RX line for break pulses (Node only) and moves all
// bytes queued by the serial port into the frame buffer. Bytes received
// while the frame buffer is full are dropped and counted in Stats.
// It never blocks and may be called any number of times.
func (e *Engine) Drain() {
	if e.role == RoleNode {
		e.detectBreak()
	}

	for e.serial.Buffered() > 0 {
		b, err := e.serial.ReadByte()
		if err != nil {
			break
		}
		if e.frames.Write(b) != nil {
			e.stats.Overflows++
			glog.V(2).Infof("frame buffer full, dropped 0x%02x", b)
		}
	}

	if !e.gotBreak {
		return
	}
	// The UART reports the break itself as a 0x00 byte with a framing
	// error. Anything else before it is stale and dropped.
	if b, err := e.frames.Read(); err == nil && b == 0 {
		if e.syncs.Write(e.frames.Tail()) != nil {
			e.stats.SyncOverflows++
		}
		e.gotBreak = false
		e.breakCount++
		e.stats.Breaks++
		glog.V(3).Infof("frame start at %d", e.frames.Tail())
	}
}

func (e *Engine) detectBreak() {
	rx := e.gpio.Get(e.config.Pins.RX)
	if rx == e.lastRX {
		return
	}
	e.lastRX = rx
	now := e.clock.Now()
	e.lastBusActivity = now
	if rx == Low {
		e.breakStart, e.breakStarted = now, true
		return
	}
	if e.breakStarted && now-e.breakStart > e.bitPeriod*BreakThresholdBits {
		e.gotBreak = true
	}
}

// WaitForData keeps draining the serial port until the frame buffer
// holds size+1 bytes (payload and checksum). It returns false if that
// doesn't happen within MaxFrameDuration of the configured baud rate.
func (e *Engine) WaitForData(size int) bool {
	start := e.clock.Now()
	timeout := e.bitPeriod * MaxFrameBits
	for e.frames.Len() < size+1 {
		e.Drain()
		if e.frames.Len() >= size+1 {
			break
		}
		if e.clock.Now()-start >= timeout {
			return false
		}
	}
	return true
}

// SkipEcho consumes the echo of the header a Host just sent for id, as
// looped back by the transceiver: received bytes up to and including the
// sync byte and the protected identifier. It returns false if the echo
// doesn't arrive within MaxFrameDuration.
func (e *Engine) SkipEcho(id byte) bool {
	pid := ProtectedID(id)
	start := e.clock.Now()
	timeout := e.bitPeriod * MaxFrameBits
	synced := false
	for {
		e.Drain()
		for {
			b, err := e.frames.Read()
			if err != nil {
				break
			}
			if synced && b == pid {
				return true
			}
			synced = b == SyncByte
		}
		if e.clock.Now()-start >= timeout {
			return false
		}
	}
}

// Discard drops everything in the frame buffer along with the recorded
// frame starts, and returns the number of bytes dropped.
func (e *Engine) Discard() int {
	n := e.frames.Discard(e.frames.Len())
	e.syncs.Reset()
	e.breakCount = 0
	return n
}

// NextHeader skips buffered bytes up to the next recorded frame start,
// abandoning the rest of the current frame. Frame starts already behind
// the read position are discarded and the pending frame start count is
// set to the starts ahead. If no frame start lies ahead, the whole
// buffer is dropped and ErrNotReady is returned.
func (e *Engine) NextHeader() error {
	for {
		pos, err := e.syncs.Peek()
		if err != nil {
			e.frames.Discard(e.frames.Len())
			e.breakCount = 0
			return ErrNotReady
		}
		if d := e.frames.Distance(pos); d <= e.frames.Len() {
			e.frames.Discard(d)
			e.breakCount = e.syncs.Len()
			return nil
		}
		e.syncs.Read()
	}
}
