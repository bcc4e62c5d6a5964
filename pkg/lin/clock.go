package lin

import (
	"runtime"
	"time"
)

// spinThreshold is the delay below which SystemClock busy-waits instead
// of sleeping, as timer resolution is too coarse for bit timing.
const spinThreshold = 2 * time.Millisecond

type systemClock struct {
	origin time.Time
}

// SystemClock returns a Clock backed by the runtime monotonic clock.
func SystemClock() Clock {
	return &systemClock{origin: time.Now()}
}

// Now implements Clock.
func (c *systemClock) Now() time.Duration {
	return time.Since(c.origin)
}

// Delay implements Clock.
func (c *systemClock) Delay(d time.Duration) {
	deadline := time.Now().Add(d)
	if d > spinThreshold {
		time.Sleep(d - spinThreshold)
	}
	for time.Now().Before(deadline) {
		runtime.Gosched()
	}
}
