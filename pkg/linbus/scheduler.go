package linbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/lin.go/pkg/framework"
	"github.com/robotalks/lin.go/pkg/lin"
)

// Entry is a slot of the schedule table.
type Entry struct {
	ID byte
	// Data is sent by the host after the header. When nil, the host
	// only sends the header and a node is expected to respond with
	// Response bytes.
	Data []byte
	// Response is the length of the node response to read, for entries
	// without Data. Zero sends the header alone.
	Response int
	// Slot is the time reserved for the frame, measured from the start
	// of the header. Zero uses the maximum frame duration.
	Slot time.Duration
}

// Validate checks the entry.
func (e Entry) Validate() error {
	if err := (Frame{ID: e.ID, Data: e.Data}).Validate(); err != nil {
		return err
	}
	if e.Response < 0 || e.Response > lin.MaxDataLen || (e.Data != nil && e.Response != 0) {
		return fmt.Errorf("%w: response of %d bytes", lin.ErrInvalidArgument, e.Response)
	}
	if e.Slot < 0 {
		return fmt.Errorf("%w: negative slot", lin.ErrInvalidArgument)
	}
	return nil
}

// Scheduler is the host side service. It cycles through a schedule
// table, one entry per step, and interleaves one-shot frames queued by
// Send ahead of the next table entry.
type Scheduler struct {
	// Handler, when set, sees every frame sent or received.
	Handler FrameHandler
	// Echo is set when the transceiver loops the header back to the host.
	// The echo is skipped before reading a response.
	Echo bool

	engine *lin.Engine

	lock    sync.Mutex
	table   []Entry
	next    int
	pending []Entry
	buf     [lin.MaxDataLen]byte
}

// NewScheduler creates a Scheduler. The engine must have the Host role
// and be started.
func NewScheduler(engine *lin.Engine, table ...Entry) (*Scheduler, error) {
	if engine.Role() != lin.RoleHost {
		return nil, lin.ErrRoleViolation
	}
	s := &Scheduler{engine: engine}
	if err := s.SetTable(table...); err != nil {
		return nil, err
	}
	return s, nil
}

// Engine returns the underlying engine.
func (s *Scheduler) Engine() *lin.Engine {
	return s.engine
}

// SetTable replaces the schedule table. The next step starts from the
// first entry.
func (s *Scheduler) SetTable(table ...Entry) error {
	for _, entry := range table {
		if err := entry.Validate(); err != nil {
			return err
		}
	}
	s.lock.Lock()
	s.table, s.next = append([]Entry(nil), table...), 0
	s.lock.Unlock()
	return nil
}

// Table returns a copy of the schedule table.
func (s *Scheduler) Table() []Entry {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Entry(nil), s.table...)
}

// Send queues a one-shot entry. It's safe to call from any goroutine.
func (s *Scheduler) Send(entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	s.lock.Lock()
	s.pending = append(s.pending, entry)
	s.lock.Unlock()
	return nil
}

// Pending returns the number of queued one-shot entries.
func (s *Scheduler) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.pending)
}

// Step transmits the next entry and waits until its slot ends. It
// returns immediately when there is nothing to send.
func (s *Scheduler) Step(ctx context.Context) error {
	entry, ok := s.nextEntry()
	if !ok {
		return nil
	}
	clock := s.engine.Clock()
	start := clock.Now()
	frame, err := s.transmit(entry)
	if err == nil && frame != nil && s.Handler != nil {
		s.Handler.HandleFrame(ctx, *frame)
	}
	slot := entry.Slot
	if slot == 0 {
		slot = lin.MaxFrameDuration(s.engine.Baud())
	}
	if rest := slot - (clock.Now() - start); rest > 0 {
		clock.Delay(rest)
	}
	return err
}

// Run implements framework.Runnable.
func (s *Scheduler) Run(ctx context.Context) error {
	return framework.NewLoop(0).Add(s).Run(ctx)
}

// Name implements framework.Named.
func (s *Scheduler) Name() string {
	return "lin-scheduler"
}

func (s *Scheduler) nextEntry() (Entry, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.pending) > 0 {
		entry := s.pending[0]
		s.pending = s.pending[1:]
		return entry, true
	}
	if len(s.table) == 0 {
		return Entry{}, false
	}
	entry := s.table[s.next]
	s.next = (s.next + 1) % len(s.table)
	return entry, true
}

func (s *Scheduler) transmit(entry Entry) (*Frame, error) {
	if n := s.engine.Discard(); n > 0 {
		glog.V(3).Infof("discarded %d stale bytes", n)
	}
	if err := s.engine.WriteHeader(entry.ID); err != nil {
		return nil, &lin.FrameError{ID: entry.ID, Err: err}
	}
	if entry.Data != nil {
		if _, err := s.engine.WriteData(entry.Data); err != nil {
			return nil, &lin.FrameError{ID: entry.ID, Err: err}
		}
		glog.V(2).Infof("sent 0x%02x % x", entry.ID, entry.Data)
		return &Frame{ID: entry.ID, Data: entry.Data}, nil
	}
	if entry.Response == 0 {
		return nil, nil
	}
	if s.Echo && !s.engine.SkipEcho(entry.ID) {
		return nil, &lin.FrameError{ID: entry.ID, Err: fmt.Errorf("header echo: %w", lin.ErrTimeout)}
	}
	if !s.engine.WaitForData(entry.Response) {
		return nil, &lin.FrameError{ID: entry.ID, Err: lin.ErrTimeout}
	}
	n, err := s.engine.ReadData(s.buf[:], entry.Response)
	if err != nil {
		return nil, &lin.FrameError{ID: entry.ID, Err: err}
	}
	frame := &Frame{ID: entry.ID, Data: append([]byte(nil), s.buf[:n]...)}
	glog.V(2).Infof("response %s", frame)
	return frame, nil
}
