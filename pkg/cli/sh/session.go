package sh

import (
	"fmt"

	"github.com/robotalks/lin.go/pkg/lin"
	"github.com/robotalks/lin.go/pkg/lin/serialport"
	"github.com/robotalks/lin.go/pkg/lin/sim"
)

// SimPort is the port name selecting the simulated bus.
const SimPort = "sim"

// Session is an open engine the shell commands operate on.
type Session struct {
	Name   string
	Engine *lin.Engine

	// peer is the engine on the other end of a simulated bus.
	peer    *lin.Engine
	ports   map[*lin.Engine]*sim.Endpoint
	closeFn func() error
}

// OpenSerial opens a serial port and begins an engine of role on it.
func OpenSerial(role lin.Role, conf lin.Config, portConf serialport.Config) (*Session, error) {
	port := serialport.New(portConf, conf.Pins)
	engine, err := lin.New(role, conf, port, port, lin.SystemClock())
	if err != nil {
		return nil, err
	}
	if err = engine.Begin(conf.Baud); err != nil {
		port.Close()
		return nil, err
	}
	return &Session{
		Name:    fmt.Sprintf("%s@%s", role, port.Name()),
		Engine:  engine,
		closeFn: port.Close,
	}, nil
}

// OpenSim creates a simulated bus with a host and a node attached.
// The engine of role is the active one, Swap switches to the other.
func OpenSim(role lin.Role, conf lin.Config) (*Session, error) {
	bus := sim.NewBus(conf.Baud)
	s := &Session{ports: make(map[*lin.Engine]*sim.Endpoint)}
	var engines [2]*lin.Engine
	for n, r := range []lin.Role{role, otherRole(role)} {
		ep := bus.Attach(conf.Pins)
		engine, err := lin.New(r, conf, ep, ep, ep)
		if err != nil {
			return nil, err
		}
		if err = engine.Begin(conf.Baud); err != nil {
			return nil, err
		}
		engines[n] = engine
		s.ports[engine] = ep
	}
	s.Engine, s.peer = engines[0], engines[1]
	s.Name = fmt.Sprintf("%s@%s", role, SimPort)
	return s, nil
}

func otherRole(role lin.Role) lin.Role {
	if role == lin.RoleHost {
		return lin.RoleNode
	}
	return lin.RoleHost
}

// Simulated tells whether the session runs on the simulated bus.
func (s *Session) Simulated() bool {
	return s.peer != nil
}

// Sync lets the active engine observe everything the peer put on the
// simulated bus. It's a no-op on real hardware.
func (s *Session) Sync() {
	if s.peer == nil {
		return
	}
	ep, peer := s.ports[s.Engine], s.ports[s.peer]
	ep.ReplayTo(peer.Time(), s.Engine.BitPeriod()/4, func() {
		s.Engine.Available()
	})
}

// Swap activates the peer engine on the simulated bus.
func (s *Session) Swap() error {
	if s.peer == nil {
		return fmt.Errorf("%w: swap requires the simulated bus", lin.ErrInvalidArgument)
	}
	s.Engine, s.peer = s.peer, s.Engine
	s.Name = fmt.Sprintf("%s@%s", s.Engine.Role(), SimPort)
	s.Sync()
	return nil
}

// Written returns the bytes the active engine transmitted on the
// simulated bus, nil on real hardware.
func (s *Session) Written() []byte {
	if ep := s.ports[s.Engine]; ep != nil {
		return ep.Written()
	}
	return nil
}

// Close releases the underlying port.
func (s *Session) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}
