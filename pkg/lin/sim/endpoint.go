package sim

import (
	"errors"
	"time"

	"github.com/robotalks/lin.go/pkg/lin"
)

// EventKind classifies what an endpoint put on the bus.
type EventKind int

// Event kinds.
const (
	EventBreak EventKind = iota
	EventByte
	EventChipSelect
)

// Event is a recorded output of an endpoint.
type Event struct {
	Kind     EventKind
	At       time.Duration
	Value    byte          // EventByte
	Level    lin.Level     // EventChipSelect
	Duration time.Duration // EventBreak
}

// Endpoint is a device attached to the bus. It implements lin.Serial,
// lin.GPIO and lin.Clock with a virtual clock.
type Endpoint struct {
	// Step is added to the clock on every Now call, the cost of a poll.
	Step time.Duration
	// Echo makes the endpoint receive its own transmissions.
	Echo bool

	bus  *Bus
	pins lin.Pins

	now     time.Duration
	running bool
	baud    int
	modes   map[lin.Pin]lin.PinMode
	cs      lin.Level
	txLevel lin.Level
	txEnd   time.Duration
	pulse   *pulse

	rxAt  time.Duration
	rxSeq int

	events []Event
}

// Now implements lin.Clock.
func (e *Endpoint) Now() time.Duration {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	t := e.now
	e.now += e.Step
	return t
}

// Delay implements lin.Clock.
func (e *Endpoint) Delay(d time.Duration) {
	e.Advance(d)
}

// Time returns the clock without advancing it.
func (e *Endpoint) Time() time.Duration {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	return e.now
}

// Advance moves the clock forward by d.
func (e *Endpoint) Advance(d time.Duration) {
	e.bus.lock.Lock()
	e.now += d
	e.bus.lock.Unlock()
}

// ReplayTo advances the clock to t in increments of step, calling fn
// after every increment.
func (e *Endpoint) ReplayTo(t, step time.Duration, fn func()) {
	if step <= 0 {
		step = e.bus.bit / 4
	}
	for e.Time() < t {
		e.bus.lock.Lock()
		if e.now += step; e.now > t {
			e.now = t
		}
		e.bus.lock.Unlock()
		if fn != nil {
			fn()
		}
	}
}

// Begin implements lin.Serial.
func (e *Endpoint) Begin(baud int) error {
	if baud <= 0 {
		return errors.New("sim: invalid baud")
	}
	e.bus.lock.Lock()
	e.running, e.baud = true, baud
	e.bus.lock.Unlock()
	return nil
}

// End implements lin.Serial.
func (e *Endpoint) End() error {
	e.bus.lock.Lock()
	e.running = false
	e.bus.lock.Unlock()
	return nil
}

// Buffered implements lin.Serial.
func (e *Endpoint) Buffered() int {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	n := 0
	for _, w := range e.bus.bytes {
		if w.arrival > e.now {
			break
		}
		if e.receives(w) {
			n++
		}
	}
	return n
}

// ReadByte implements lin.Serial.
func (e *Endpoint) ReadByte() (byte, error) {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	for _, w := range e.bus.bytes {
		if w.arrival > e.now {
			break
		}
		if e.receives(w) {
			e.rxAt, e.rxSeq = w.arrival, w.seq
			return w.value, nil
		}
	}
	return 0, lin.ErrBufferEmpty
}

func (e *Endpoint) receives(w *wireByte) bool {
	return (e.Echo || w.from != e) && w.after(e.rxAt, e.rxSeq)
}

// Write implements lin.Serial. Bytes are sent back to back after any
// byte still in transmission.
func (e *Endpoint) Write(p []byte) (int, error) {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	if !e.running {
		return 0, ErrStopped
	}
	for _, v := range p {
		start := e.now
		if e.txEnd > start {
			start = e.txEnd
		}
		e.bus.addByte(&wireByte{from: e, start: start, value: v, line: true})
		e.txEnd = start + bitsPerByte*e.bus.bit
		e.events = append(e.events, Event{Kind: EventByte, At: start, Value: v})
	}
	return len(p), nil
}

// Flush implements lin.Serial.
func (e *Endpoint) Flush() error {
	e.bus.lock.Lock()
	if e.now < e.txEnd {
		e.now = e.txEnd
	}
	e.bus.lock.Unlock()
	return nil
}

// Configure implements lin.GPIO.
func (e *Endpoint) Configure(pin lin.Pin, mode lin.PinMode) {
	e.bus.lock.Lock()
	e.modes[pin] = mode
	e.bus.lock.Unlock()
}

// Mode returns the configured mode of pin.
func (e *Endpoint) Mode(pin lin.Pin) (lin.PinMode, bool) {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	mode, ok := e.modes[pin]
	return mode, ok
}

// Set implements lin.GPIO.
func (e *Endpoint) Set(pin lin.Pin, level lin.Level) {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	switch pin {
	case e.pins.TX:
		e.setTX(level)
	case e.pins.CS:
		e.cs = level
		e.events = append(e.events, Event{Kind: EventChipSelect, At: e.now, Level: level})
	}
}

func (e *Endpoint) setTX(level lin.Level) {
	if level == e.txLevel {
		return
	}
	e.txLevel = level
	if level == lin.Low {
		e.pulse = &pulse{from: e, start: e.now, open: true}
		e.bus.pulses = append(e.bus.pulses, e.pulse)
		return
	}
	p := e.pulse
	e.pulse = nil
	p.end, p.open = e.now, false
	e.events = append(e.events, Event{Kind: EventBreak, At: p.start, Duration: p.end - p.start})
	// A dominant level held through a whole character is received as 0x00.
	if p.end-p.start >= bitsPerByte*e.bus.bit {
		e.bus.addByte(&wireByte{from: e, start: p.start, value: 0})
	}
}

// Get implements lin.GPIO. The RX pin samples the bus.
func (e *Endpoint) Get(pin lin.Pin) lin.Level {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	switch pin {
	case e.pins.RX:
		return e.bus.levelAt(e.now)
	case e.pins.TX:
		return e.txLevel
	case e.pins.CS:
		return e.cs
	}
	return lin.High
}

// ChipSelect returns the level of the CS line.
func (e *Endpoint) ChipSelect() lin.Level {
	return e.Get(e.pins.CS)
}

// Events returns everything the endpoint put on the bus.
func (e *Endpoint) Events() []Event {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	return append([]Event(nil), e.events...)
}

// Written returns the bytes the endpoint transmitted through its UART.
func (e *Endpoint) Written() []byte {
	var out []byte
	for _, ev := range e.Events() {
		if ev.Kind == EventByte {
			out = append(out, ev.Value)
		}
	}
	return out
}

// Reset clears the recorded events.
func (e *Endpoint) Reset() {
	e.bus.lock.Lock()
	e.events = nil
	e.bus.lock.Unlock()
}
