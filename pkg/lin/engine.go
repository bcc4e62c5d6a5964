package lin

import (
	"time"

	"github.com/golang/glog"
)

// Stats counts conditions the read path doesn't report as errors.
type Stats struct {
	// Breaks is the number of frame starts detected.
	Breaks uint64
	// Overflows is the number of received bytes dropped on a full frame buffer.
	Overflows uint64
	// SyncOverflows is the number of frame starts dropped on a full sync buffer.
	SyncOverflows uint64
}

// Engine is a LIN protocol engine bound to one serial port and one set
// of GPIO lines. It is not safe for concurrent use.
type Engine struct {
	config Config
	role   Role
	serial Serial
	gpio   GPIO
	clock  Clock

	state     State
	baud      int
	bitPeriod time.Duration

	frames *Ring[byte]
	syncs  *Ring[int]

	// break detection
	lastRX          Level
	lastBusActivity time.Duration
	breakStart      time.Duration
	breakStarted    bool
	gotBreak        bool
	breakCount      int

	stats Stats
	txBuf [2]byte
}

// NewNode creates a Node engine. RX and CS pins are required.
func NewNode(conf Config, s Serial, g GPIO, c Clock) (*Engine, error) {
	return New(RoleNode, conf, s, g, c)
}

// NewHost creates a Host engine. RX, TX and CS pins are required.
func NewHost(conf Config, s Serial, g GPIO, c Clock) (*Engine, error) {
	return New(RoleHost, conf, s, g, c)
}

// New creates an engine with the given role.
func New(role Role, conf Config, s Serial, g GPIO, c Clock) (*Engine, error) {
	if s == nil || g == nil || c == nil {
		return nil, ErrInvalidArgument
	}
	if conf.Pins.RX == NoPin || conf.Pins.CS == NoPin {
		return nil, ErrInvalidArgument
	}
	if role == RoleHost && conf.Pins.TX == NoPin {
		return nil, ErrInvalidArgument
	}
	if conf.FrameBufferSize <= 0 {
		conf.FrameBufferSize = defaultConfig.FrameBufferSize
	}
	e := &Engine{
		config: conf,
		role:   role,
		serial: s,
		gpio:   g,
		clock:  c,
		state:  StatePowerOnReset,
		frames: NewRing[byte](conf.FrameBufferSize),
		syncs:  NewRing[int](SyncBufferSize),
	}
	e.reset()
	return e, nil
}

// Begin configures the lines, clears the buffers and starts the serial
// port at baud. The engine moves to StateReady.
func (e *Engine) Begin(baud int) error {
	if baud <= 0 || BitPeriod(baud) == 0 {
		return ErrInvalidArgument
	}
	pins := e.config.Pins
	e.gpio.Configure(pins.CS, PinOutput)
	e.gpio.Set(pins.CS, High)
	e.gpio.Configure(pins.RX, PinInputPullup)
	if pins.TX != NoPin {
		e.gpio.Configure(pins.TX, PinOutput)
	}

	e.frames.Reset()
	e.syncs.Reset()

	e.baud, e.bitPeriod = baud, BitPeriod(baud)
	if err := e.serial.Begin(baud); err != nil {
		return err
	}
	e.state = StateReady
	e.reset()
	glog.Infof("LIN %s begin at %d baud (LIN %d.%d)", e.role, baud, e.config.LinVersion/10, e.config.LinVersion%10)
	return nil
}

// Sleep puts the transceiver to sleep. With force on a Host, the sleep
// command frame is broadcast first. The transceiver is disabled even if
// sending the sleep frame fails.
func (e *Engine) Sleep(force bool) (err error) {
	if force && e.role == RoleHost {
		if err = e.WriteHeader(SleepID); err == nil {
			var cmd [MaxDataLen]byte
			_, err = e.WriteData(cmd[:])
		}
	}
	e.gpio.Set(e.config.Pins.CS, Low)
	e.state = StateSleep
	glog.Info("LIN sleep")
	return
}

// Wake enables the transceiver. A Node with a TX line also sends the
// wake-up byte and waits until it's on the wire.
func (e *Engine) Wake() error {
	e.gpio.Set(e.config.Pins.CS, High)
	e.state = StateReady
	glog.Info("LIN wake")
	if e.role == RoleNode && e.config.Pins.TX != NoPin {
		e.txBuf[0] = WakeByte
		if _, err := e.serial.Write(e.txBuf[:1]); err != nil {
			return err
		}
		return e.serial.Flush()
	}
	return nil
}

// Role returns the bus role.
func (e *Engine) Role() Role {
	return e.role
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Config returns the config the engine was created with.
func (e *Engine) Config() Config {
	return e.config
}

// Baud returns the baud rate given to Begin.
func (e *Engine) Baud() int {
	return e.baud
}

// BitPeriod returns the duration of one bit at the current baud rate.
func (e *Engine) BitPeriod() time.Duration {
	return e.bitPeriod
}

// Clock returns the clock the engine times the bus with.
func (e *Engine) Clock() Clock {
	return e.clock
}

// Stats returns the counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// LastBusActivity returns the clock reading of the last RX transition.
func (e *Engine) LastBusActivity() time.Duration {
	return e.lastBusActivity
}

// Idle returns the time since the last RX transition.
func (e *Engine) Idle() time.Duration {
	return e.clock.Now() - e.lastBusActivity
}

func (e *Engine) reset() {
	e.gotBreak = false
	e.breakStarted = false
	e.breakCount = 0
	e.lastRX = High
}
