// Package sim provides a simulated LIN wire for exercising engines
// without hardware.
package sim

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robotalks/lin.go/pkg/lin"
)

// ErrStopped indicates a write while the UART is stopped.
var ErrStopped = errors.New("sim: serial stopped")

// bitsPerByte is the UART frame length: start, 8 data bits, stop.
const bitsPerByte = 10

// Bus is a simulated single-wire bus. Everything endpoints transmit is
// recorded on a shared timeline; every endpoint keeps its own virtual
// clock and observes the timeline up to its current time. A sequence
// written by one endpoint can therefore be replayed by another one
// afterwards, bit by bit, on a single goroutine.
type Bus struct {
	bit time.Duration

	lock   sync.Mutex
	pulses []*pulse
	bytes  []*wireByte
	seq    int
}

type pulse struct {
	from       *Endpoint
	start, end time.Duration
	open       bool
}

type wireByte struct {
	from    *Endpoint
	seq     int
	start   time.Duration
	arrival time.Duration
	value   byte
	// line is false for the 0x00 a UART reports on a break; the line
	// level is given by the pulse itself.
	line bool
}

func (w *wireByte) after(at time.Duration, seq int) bool {
	return w.arrival > at || (w.arrival == at && w.seq > seq)
}

// NewBus creates a bus running at baud.
func NewBus(baud int) *Bus {
	return &Bus{bit: lin.BitPeriod(baud)}
}

// BitPeriod returns the duration of one bit on the bus.
func (b *Bus) BitPeriod() time.Duration {
	return b.bit
}

// Attach creates an endpoint wired with the given pins.
func (b *Bus) Attach(pins lin.Pins) *Endpoint {
	return &Endpoint{
		bus:     b,
		pins:    pins,
		Step:    time.Microsecond,
		modes:   make(map[lin.Pin]lin.PinMode),
		cs:      lin.Low,
		txLevel: lin.High,
		rxAt:    -1,
	}
}

// Level returns the line level at t.
func (b *Bus) Level(t time.Duration) lin.Level {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.levelAt(t)
}

func (b *Bus) levelAt(t time.Duration) lin.Level {
	for _, p := range b.pulses {
		if p.start <= t && (p.open || t < p.end) {
			return lin.Low
		}
	}
	for _, w := range b.bytes {
		if !w.line || t < w.start || t >= w.start+bitsPerByte*b.bit {
			continue
		}
		switch k := int((t - w.start) / b.bit); k {
		case 0:
			return lin.Low
		case bitsPerByte - 1:
			return lin.High
		default:
			return lin.Level((w.value>>uint(k-1))&1 != 0)
		}
	}
	return lin.High
}

func (b *Bus) addByte(w *wireByte) {
	b.seq++
	w.seq = b.seq
	w.arrival = w.start + bitsPerByte*b.bit
	i := sort.Search(len(b.bytes), func(i int) bool {
		return b.bytes[i].after(w.arrival, w.seq)
	})
	b.bytes = append(b.bytes, nil)
	copy(b.bytes[i+1:], b.bytes[i:])
	b.bytes[i] = w
}
