// Package websocket streams LIN frames to websocket clients.
package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/lin.go/pkg/framework"
	"github.com/robotalks/lin.go/pkg/linbus"
	"github.com/robotalks/lin.go/pkg/msgs"
)

// Sender accepts one-shot frames, implemented by linbus.Scheduler.
type Sender interface {
	Send(linbus.Entry) error
}

// client is a connected websocket with its own send queue, so a slow
// client never blocks the bus.
type client struct {
	ws   *websocket.Conn
	addr string
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Monitor broadcasts every frame it handles to the connected clients as
// an encoded msgs.Frame. With a Sender, clients may send msgs.Transmit
// messages to inject frames.
type Monitor struct {
	Sender Sender
	// WriteTimeout bounds a write to one client.
	WriteTimeout time.Duration
	// QueueSize is the number of frames queued per client. A client
	// whose queue is full is disconnected.
	QueueSize int

	lock    sync.RWMutex
	clients map[*client]struct{}
}

// NewMonitor creates a Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		WriteTimeout: time.Second,
		QueueSize:    64,
		clients:      make(map[*client]struct{}),
	}
}

// Handler returns the websocket endpoint.
func (m *Monitor) Handler() http.Handler {
	return websocket.Handler(m.serve)
}

// Clients returns the number of connected clients.
func (m *Monitor) Clients() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.clients)
}

// HandleFrame implements linbus.FrameHandler. It only queues the frame
// and never blocks.
func (m *Monitor) HandleFrame(ctx context.Context, frame linbus.Frame) {
	pkt, err := msgs.Encode(msgs.NewFrame(frame, time.Now()))
	if err != nil {
		glog.Errorf("encode frame %s: %v", frame, err)
		return
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	for c := range m.clients {
		select {
		case c.out <- pkt:
		case <-c.done:
		default:
			glog.Warningf("websocket %s: queue full, disconnect", c.addr)
			c.stop()
		}
	}
}

// Serve serves the websocket endpoint on addr until ctx is done.
func (m *Monitor) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: m.Handler()}
	glog.Infof("monitor listening on %s", ln.Addr())
	err = framework.RunWithContextCloser(ctx, server, func() error {
		return server.Serve(ln)
	})
	if err == http.ErrServerClosed {
		err = nil
	}
	return err
}

func (m *Monitor) serve(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	size := m.QueueSize
	if size <= 0 {
		size = 1
	}
	c := &client{
		ws:   ws,
		addr: ws.Request().RemoteAddr,
		out:  make(chan []byte, size),
		done: make(chan struct{}),
	}
	m.lock.Lock()
	m.clients[c] = struct{}{}
	m.lock.Unlock()
	glog.V(2).Infof("websocket %s connected", c.addr)
	go m.writeLoop(c)
	defer func() {
		m.lock.Lock()
		delete(m.clients, c)
		m.lock.Unlock()
		c.stop()
		glog.V(2).Infof("websocket %s disconnected", c.addr)
	}()

	for {
		var pkt []byte
		if err := websocket.Message.Receive(ws, &pkt); err != nil {
			return
		}
		if m.Sender == nil {
			continue
		}
		if err := m.transmit(pkt); err != nil {
			glog.Warningf("websocket %s: %v", c.addr, err)
		}
	}
}

// writeLoop sends queued frames until the client stops. Closing the
// connection ends the read loop in serve.
func (m *Monitor) writeLoop(c *client) {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			return
		case pkt := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(m.WriteTimeout))
			if err := websocket.Message.Send(c.ws, pkt); err != nil {
				glog.Warningf("websocket %s: %v", c.addr, err)
				c.stop()
				return
			}
		}
	}
}

func (m *Monitor) transmit(pkt []byte) error {
	msg, err := msgs.DecodeTransmit(pkt)
	if err != nil {
		return err
	}
	entry, err := msg.Entry()
	if err != nil {
		return err
	}
	return m.Sender.Send(entry)
}
