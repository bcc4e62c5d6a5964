package serialport

import (
	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/lin.go/pkg/lin"
)

// Configure implements lin.GPIO. Line directions are fixed by the
// adapter.
func (p *Port) Configure(pin lin.Pin, mode lin.PinMode) {
}

// Set implements lin.GPIO.
//
// Driving TX low while the UART is ended sends 0x00 at 9/13 of the baud
// rate: start and data bits then hold the line dominant for 13 bit
// times of the real rate. Driving TX high waits for the byte to leave
// and restores the baud rate.
func (p *Port) Set(pin lin.Pin, level lin.Level) {
	var err error
	switch pin {
	case p.pins.CS:
		err = p.setCS(level)
	case p.pins.TX:
		err = p.setTX(level)
	}
	if err != nil {
		glog.Warningf("serial %s set pin %d %s: %v", p.config.Name, pin, level, err)
	}
}

func (p *Port) setCS(level lin.Level) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.port == nil {
		// applied when Begin opens the device
		p.cs = level
		return nil
	}
	if err := p.port.SetDTR(bool(level)); err != nil {
		return err
	}
	p.cs = level
	return nil
}

func (p *Port) setTX(level lin.Level) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.port == nil {
		return ErrClosed
	}
	if p.running || p.txLow == (level == lin.Low) {
		return nil
	}
	if level == lin.Low {
		mode := p.mode
		mode.BaudRate = p.mode.BaudRate * 9 / 13
		if err := p.port.SetMode(&mode); err != nil {
			return err
		}
		p.txLow = true
		_, err := p.port.Write([]byte{0})
		return err
	}
	p.txLow = false
	if err := p.port.Drain(); err != nil {
		return err
	}
	return p.port.SetMode(&p.mode)
}

// Get implements lin.GPIO. RX reads CTS, CS reads back DTR.
func (p *Port) Get(pin lin.Pin) lin.Level {
	port, err := p.current(false)
	if err != nil {
		return lin.High
	}
	switch pin {
	case p.pins.RX:
		var bits *serial.ModemStatusBits
		if bits, err = port.GetModemStatusBits(); err == nil {
			return lin.Level(bits.CTS)
		}
		glog.Warningf("serial %s modem status: %v", p.config.Name, err)
	case p.pins.TX:
		p.lock.Lock()
		defer p.lock.Unlock()
		return lin.Level(!p.txLow)
	case p.pins.CS:
		p.lock.Lock()
		defer p.lock.Unlock()
		return p.cs
	}
	return lin.High
}

// Ports lists the serial ports of the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
