// Package serialport drives a LIN transceiver attached to a serial
// adapter. The UART carries the bytes and the modem control lines stand
// in for the GPIO lines: CS is DTR, RX is sensed on CTS. The break is
// generated on the data line itself.
package serialport

import (
	"errors"
	"sync"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/lin.go/pkg/lin"
)

var (
	// ErrClosed indicates the port has been closed.
	ErrClosed = errors.New("serial port closed")
	// ErrStopped indicates a write while the UART is ended.
	ErrStopped = errors.New("serial port stopped")
)

// openPort is replaced in tests.
var openPort = serial.Open

// Port implements lin.Serial and lin.GPIO.
type Port struct {
	config Config
	pins   lin.Pins

	lock    sync.Mutex
	port    serial.Port
	mode    serial.Mode
	running bool
	rx      *lin.Ring[byte]
	dropped uint64
	err     error
	txLow   bool
	cs      lin.Level
	done    chan struct{}
	stopped chan struct{}
}

// New creates a port. The device is opened by the first Begin.
func New(conf Config, pins lin.Pins) *Port {
	if conf.RXBufferSize <= 0 {
		conf.RXBufferSize = defaultConfig.RXBufferSize
	}
	if conf.ReadTimeout <= 0 {
		conf.ReadTimeout = defaultConfig.ReadTimeout
	}
	return &Port{
		config: conf,
		pins:   pins,
		rx:     lin.NewRing[byte](conf.RXBufferSize),
		mode: serial.Mode{
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
}

// Name returns the device name.
func (p *Port) Name() string {
	return p.config.Name
}

// Begin implements lin.Serial. It opens the device on first use and
// otherwise only reprograms the baud rate.
func (p *Port) Begin(baud int) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.mode.BaudRate = baud
	if p.port != nil {
		if err := p.port.SetMode(&p.mode); err != nil {
			return err
		}
		p.running = true
		if p.err != nil {
			glog.Warningf("serial %s: restart reader after %v", p.config.Name, p.err)
			p.startReader()
		}
		return nil
	}
	port, err := openPort(p.config.Name, &p.mode)
	if err != nil {
		return err
	}
	if err = port.SetReadTimeout(p.config.ReadTimeout); err != nil {
		port.Close()
		return err
	}
	// CS may have been set before the device was open
	if err = port.SetDTR(bool(p.cs)); err != nil {
		port.Close()
		return err
	}
	p.port, p.running = port, true
	p.startReader()
	glog.Infof("serial %s opened at %d baud", p.config.Name, baud)
	return nil
}

// Err returns the failure that stopped the reader, nil while receiving.
// The next Begin restarts the reader.
func (p *Port) Err() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.err
}

// startReader must be called with lock held.
func (p *Port) startReader() {
	p.err = nil
	p.done, p.stopped = make(chan struct{}), make(chan struct{})
	go p.readLoop(p.port, p.done, p.stopped)
}

// End implements lin.Serial. The device stays open and receiving.
func (p *Port) End() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.port == nil {
		return ErrClosed
	}
	p.running = false
	return nil
}

// Close stops the reader and closes the device.
func (p *Port) Close() error {
	p.lock.Lock()
	port, done, stopped := p.port, p.done, p.stopped
	p.port, p.running = nil, false
	p.lock.Unlock()
	if port == nil {
		return nil
	}
	close(done)
	err := port.Close()
	<-stopped
	return err
}

// Buffered implements lin.Serial.
func (p *Port) Buffered() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.rx.Len()
}

// ReadByte implements lin.Serial. It reports a failure of the reader
// once the received bytes are consumed.
func (p *Port) ReadByte() (byte, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	b, err := p.rx.Read()
	if err != nil && p.err != nil {
		return 0, p.err
	}
	return b, err
}

// Write implements lin.Serial.
func (p *Port) Write(data []byte) (int, error) {
	port, err := p.current(true)
	if err != nil {
		return 0, err
	}
	return port.Write(data)
}

// Flush implements lin.Serial.
func (p *Port) Flush() error {
	port, err := p.current(false)
	if err != nil {
		return err
	}
	return port.Drain()
}

// Dropped returns the number of received bytes lost on a full buffer.
func (p *Port) Dropped() uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.dropped
}

func (p *Port) current(running bool) (serial.Port, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.port == nil {
		return nil, ErrClosed
	}
	if running && !p.running {
		return nil, ErrStopped
	}
	return p.port, nil
}

func (p *Port) readLoop(port serial.Port, done, stopped chan struct{}) {
	defer close(stopped)
	buf := make([]byte, 64)
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := port.Read(buf)
		p.lock.Lock()
		for _, b := range buf[:n] {
			if p.rx.Write(b) != nil {
				p.dropped++
			}
		}
		if err != nil {
			select {
			case <-done:
			default:
				p.err = err
				glog.Errorf("serial %s read: %v", p.config.Name, err)
			}
			p.lock.Unlock()
			return
		}
		p.lock.Unlock()
	}
}
