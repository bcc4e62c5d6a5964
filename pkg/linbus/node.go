package linbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/lin.go/pkg/framework"
	"github.com/robotalks/lin.go/pkg/lin"
)

// DefaultIdleTimeout is the bus silence after which a node may go to sleep.
const DefaultIdleTimeout = 4 * time.Second

type subscription struct {
	length  int
	handler FrameHandler
}

// Node is a bus node service: it answers headers of the frames it
// publishes and receives the frames it subscribes to.
type Node struct {
	// Handler, when set, sees every frame the node receives or publishes.
	Handler FrameHandler
	// IdleTimeout enables idle detection when positive.
	IdleTimeout time.Duration
	// OnIdle is called once per idle period.
	OnIdle func(context.Context)
	// PollInterval is the Run loop interval.
	PollInterval time.Duration

	engine *lin.Engine

	lock     sync.RWMutex
	subs     map[byte]subscription
	pubs     map[byte]Responder
	idle     bool
	received uint64
	buf      [lin.MaxDataLen]byte
}

// NewNode creates a Node service. The engine must have the Node role and
// be started.
func NewNode(engine *lin.Engine) (*Node, error) {
	if engine.Role() != lin.RoleNode {
		return nil, lin.ErrRoleViolation
	}
	return &Node{
		IdleTimeout:  DefaultIdleTimeout,
		PollInterval: 100 * time.Microsecond,
		engine:       engine,
		subs:         make(map[byte]subscription),
		pubs:         make(map[byte]Responder),
	}, nil
}

// Engine returns the underlying engine.
func (n *Node) Engine() *lin.Engine {
	return n.engine
}

// Subscribe receives frames of id with a payload of length bytes. A
// zero length takes the length from the identifier's data length code.
func (n *Node) Subscribe(id byte, length int, handler FrameHandler) error {
	if id > lin.MaxID || length < 0 || length > lin.MaxDataLen {
		return lin.ErrInvalidArgument
	}
	if length == 0 {
		length = lin.DataLengthCode(lin.ProtectedID(id))
	}
	n.lock.Lock()
	defer n.lock.Unlock()
	if _, exist := n.pubs[id]; exist {
		return fmt.Errorf("%w: 0x%02x is published", lin.ErrInvalidArgument, id)
	}
	n.subs[id] = subscription{length: length, handler: handler}
	return nil
}

// Publish answers headers of id with the data from responder.
func (n *Node) Publish(id byte, responder Responder) error {
	if id > lin.MaxID || responder == nil {
		return lin.ErrInvalidArgument
	}
	n.lock.Lock()
	defer n.lock.Unlock()
	if _, exist := n.subs[id]; exist {
		return fmt.Errorf("%w: 0x%02x is subscribed", lin.ErrInvalidArgument, id)
	}
	n.pubs[id] = responder
	return nil
}

// Unsubscribe removes a subscription or publication of id.
func (n *Node) Unsubscribe(id byte) {
	n.lock.Lock()
	delete(n.subs, id)
	delete(n.pubs, id)
	n.lock.Unlock()
}

// Received returns the number of frames received without error.
func (n *Node) Received() uint64 {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.received
}

// Idle reports whether the bus has been idle for IdleTimeout.
func (n *Node) Idle() bool {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.idle
}

// Poll handles at most one frame. A malformed header, such as
// lin.ErrSyncMismatch or lin.ErrParityMismatch, is returned as is since
// the frame has no trusted identifier. Errors in the response of a known
// frame are returned as *lin.FrameError. Either way the node has already
// resynchronized.
func (n *Node) Poll(ctx context.Context) error {
	if n.engine.Available() == 0 {
		n.checkIdle(ctx)
		return nil
	}
	n.setIdle(false)
	if n.engine.DataAvailable() < 2 {
		return nil
	}
	id, err := n.engine.ReadHeader()
	if err != nil {
		n.resync()
		return err
	}

	n.lock.RLock()
	sub, subscribed := n.subs[id]
	responder := n.pubs[id]
	n.lock.RUnlock()

	switch {
	case responder != nil:
		return n.respond(ctx, id, responder)
	case subscribed:
		return n.receive(ctx, id, sub)
	}
	glog.V(3).Infof("ignore frame 0x%02x", id)
	return nil
}

// Step implements framework.Stepper.
func (n *Node) Step(ctx context.Context) error {
	return n.Poll(ctx)
}

// Run implements framework.Runnable.
func (n *Node) Run(ctx context.Context) error {
	return framework.NewLoop(n.PollInterval).Add(n).Run(ctx)
}

// Name implements framework.Named.
func (n *Node) Name() string {
	return "lin-node"
}

func (n *Node) respond(ctx context.Context, id byte, responder Responder) error {
	data, err := responder.Respond(ctx, id)
	if err != nil {
		return &lin.FrameError{ID: id, Err: err}
	}
	if _, err = n.engine.WriteData(data); err != nil {
		return &lin.FrameError{ID: id, Err: err}
	}
	glog.V(2).Infof("published 0x%02x % x", id, data)
	n.notify(ctx, Frame{ID: id, Data: data}, nil)
	return nil
}

func (n *Node) receive(ctx context.Context, id byte, sub subscription) error {
	if !n.engine.WaitForData(sub.length) {
		n.resync()
		return &lin.FrameError{ID: id, Err: lin.ErrTimeout}
	}
	size, err := n.engine.ReadData(n.buf[:], sub.length)
	if err != nil {
		n.resync()
		return &lin.FrameError{ID: id, Err: err}
	}
	frame := Frame{ID: id, Data: append([]byte(nil), n.buf[:size]...)}
	glog.V(2).Infof("received %s", frame)
	n.lock.Lock()
	n.received++
	n.lock.Unlock()
	n.notify(ctx, frame, sub.handler)
	return nil
}

func (n *Node) notify(ctx context.Context, frame Frame, handler FrameHandler) {
	if handler != nil {
		handler.HandleFrame(ctx, frame)
	}
	if n.Handler != nil {
		n.Handler.HandleFrame(ctx, frame)
	}
}

func (n *Node) resync() {
	if err := n.engine.NextHeader(); err != nil && !errors.Is(err, lin.ErrNotReady) {
		glog.Warningf("resync: %v", err)
	}
}

func (n *Node) checkIdle(ctx context.Context) {
	if n.IdleTimeout <= 0 {
		return
	}
	idle := n.engine.Idle() >= n.IdleTimeout
	if idle == n.Idle() {
		return
	}
	n.setIdle(idle)
	if !idle {
		return
	}
	glog.Infof("bus idle for %v", n.IdleTimeout)
	if n.OnIdle != nil {
		n.OnIdle(ctx)
	}
}

func (n *Node) setIdle(idle bool) {
	n.lock.Lock()
	n.idle = idle
	n.lock.Unlock()
}
