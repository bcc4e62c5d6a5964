package lin_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/lin.go/pkg/lin"
	"github.com/robotalks/lin.go/pkg/lin/sim"
)

const testBaud = 19200

var testPins = lin.Pins{RX: 0, TX: 1, CS: 2}

type testRig struct {
	t        *testing.T
	bus      *sim.Bus
	hostPort *sim.Endpoint
	nodePort *sim.Endpoint
	host     *lin.Engine
	node     *lin.Engine
}

func newTestRig(t *testing.T, nodePins lin.Pins) *testRig {
	conf := lin.NewConfig()
	conf.Baud, conf.Pins = testBaud, testPins
	r := &testRig{t: t, bus: sim.NewBus(testBaud)}
	r.hostPort = r.bus.Attach(testPins)
	r.nodePort = r.bus.Attach(nodePins)

	var err error
	r.host, err = lin.NewHost(*conf, r.hostPort, r.hostPort, r.hostPort)
	require.NoError(t, err)
	conf.Pins = nodePins
	r.node, err = lin.NewNode(*conf, r.nodePort, r.nodePort, r.nodePort)
	require.NoError(t, err)
	require.NoError(t, r.host.Begin(testBaud))
	require.NoError(t, r.node.Begin(testBaud))
	r.hostPort.Reset()
	r.nodePort.Reset()
	return r
}

// replay polls the node until its clock catches up with the host.
func (r *testRig) replay() int {
	r.nodePort.ReplayTo(r.hostPort.Time(), r.bus.BitPeriod()/4, func() {
		r.node.Available()
	})
	return r.node.Available()
}

func (r *testRig) send(id byte, data []byte) {
	require.NoError(r.t, r.host.WriteHeader(id))
	if data != nil {
		n, err := r.host.WriteData(data)
		require.NoError(r.t, err)
		require.Equal(r.t, len(data), n)
	}
}

// sendRaw puts a break followed by arbitrary bytes on the bus.
func (r *testRig) sendRaw(p ...byte) {
	ep := r.hostPort
	require.NoError(r.t, ep.End())
	ep.Set(testPins.TX, lin.Low)
	ep.Advance(lin.BreakBits * r.bus.BitPeriod())
	ep.Set(testPins.TX, lin.High)
	require.NoError(r.t, ep.Begin(testBaud))
	ep.Advance(lin.BreakDelimiterBits * r.bus.BitPeriod())
	_, err := ep.Write(p)
	require.NoError(r.t, err)
	require.NoError(r.t, ep.Flush())
}

func TestBegin(t *testing.T) {
	r := newTestRig(t, testPins)
	require.Equal(t, lin.StateReady, r.node.State())
	require.Equal(t, lin.RoleNode, r.node.Role())
	require.Equal(t, lin.RoleHost, r.host.Role())
	require.Equal(t, 52*time.Microsecond, r.node.BitPeriod())
	require.Equal(t, lin.High, r.nodePort.ChipSelect())
	mode, ok := r.nodePort.Mode(testPins.RX)
	require.True(t, ok)
	require.Equal(t, lin.PinInputPullup, mode)
	mode, ok = r.nodePort.Mode(testPins.CS)
	require.True(t, ok)
	require.Equal(t, lin.PinOutput, mode)
	require.ErrorIs(t, r.node.Begin(0), lin.ErrInvalidArgument)
}

func TestNewRequiresPins(t *testing.T) {
	ep := sim.NewBus(testBaud).Attach(testPins)
	conf := lin.NewConfig()
	conf.Pins = lin.Pins{RX: 0, TX: lin.NoPin, CS: 2}
	_, err := lin.NewHost(*conf, ep, ep, ep)
	require.ErrorIs(t, err, lin.ErrInvalidArgument)
	_, err = lin.NewNode(*conf, ep, ep, ep)
	require.NoError(t, err)
	conf.Pins.CS = lin.NoPin
	_, err = lin.NewNode(*conf, ep, ep, ep)
	require.ErrorIs(t, err, lin.ErrInvalidArgument)
	_, err = lin.NewNode(*lin.NewConfig(), nil, ep, ep)
	require.ErrorIs(t, err, lin.ErrInvalidArgument)
}

func TestHostToNode(t *testing.T) {
	r := newTestRig(t, testPins)
	r.send(0x01, []byte{0xaa, 0xbb})
	require.Equal(t, []byte{0x55, 0xc1, 0xaa, 0xbb, 0x99}, r.hostPort.Written())

	events := r.hostPort.Events()
	require.Equal(t, sim.EventBreak, events[0].Kind)
	require.Equal(t, lin.BreakBits*r.bus.BitPeriod(), events[0].Duration)
	require.Equal(t, events[0].At+(lin.BreakBits+lin.BreakDelimiterBits)*r.bus.BitPeriod(), events[1].At)

	require.Equal(t, 1, r.replay())
	require.Equal(t, 5, r.node.DataAvailable())
	id, err := r.node.ReadID()
	require.NoError(t, err)
	require.Equal(t, byte(0x01), id)
	require.Equal(t, 0, r.node.Available())
	require.True(t, r.node.WaitForData(2))

	buf := make([]byte, 8)
	n, err := r.node.ReadData(buf, 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{0xaa, 0xbb}, buf[:n])
	require.Equal(t, 0, r.node.DataAvailable())
	require.Equal(t, uint64(1), r.node.Stats().Breaks)
}

func TestConsecutiveFrames(t *testing.T) {
	r := newTestRig(t, testPins)
	buf := make([]byte, 8)
	for id := byte(0); id <= lin.MaxID; id += 7 {
		data := []byte{id, ^id, 0x00, 0xff}
		r.send(id, data)
		require.Equal(t, 1, r.replay(), "id 0x%02x", id)
		got, err := r.node.ReadID()
		require.NoError(t, err)
		require.Equal(t, id, got)
		n, err := r.node.ReadData(buf, len(data))
		require.NoError(t, err)
		require.Equal(t, data, buf[:n])
		r.hostPort.Advance(10 * r.bus.BitPeriod())
	}
}

func TestDataBytesAreNotBreaks(t *testing.T) {
	r := newTestRig(t, testPins)
	// 0x00 keeps the line dominant for 9 bits, below the break threshold.
	r.send(0x10, []byte{0x00, 0x00, 0x00, 0x00})
	require.Equal(t, 1, r.replay())
	require.Equal(t, uint64(1), r.node.Stats().Breaks)
}

func TestReadIDErrors(t *testing.T) {
	r := newTestRig(t, testPins)
	_, err := r.node.ReadID()
	require.ErrorIs(t, err, lin.ErrNotReady)
	require.Equal(t, -1, lin.Code(err))

	r.sendRaw(0x54, lin.ProtectedID(5), 0x11, lin.ClassicChecksum([]byte{0x11}))
	require.Equal(t, 1, r.replay())
	_, err = r.node.ReadID()
	require.ErrorIs(t, err, lin.ErrSyncMismatch)
	require.Equal(t, -3, lin.Code(err))
	require.ErrorIs(t, r.node.NextHeader(), lin.ErrNotReady)
	require.Equal(t, 0, r.node.DataAvailable())

	r.hostPort.Advance(10 * r.bus.BitPeriod())
	r.sendRaw(0x55, 0x05, 0x11, lin.ClassicChecksum([]byte{0x11}))
	require.Equal(t, 1, r.replay())
	_, err = r.node.ReadID()
	require.ErrorIs(t, err, lin.ErrParityMismatch)
	require.Equal(t, -4, lin.Code(err))
	require.ErrorIs(t, r.node.NextHeader(), lin.ErrNotReady)

	// the next frame parses normally
	r.hostPort.Advance(10 * r.bus.BitPeriod())
	r.send(0x05, []byte{0x11})
	require.Equal(t, 1, r.replay())
	id, err := r.node.ReadID()
	require.NoError(t, err)
	require.Equal(t, byte(0x05), id)
}

func TestReadDataErrors(t *testing.T) {
	r := newTestRig(t, testPins)
	r.send(0x02, []byte{0x42})
	r.replay()
	_, err := r.node.ReadID()
	require.NoError(t, err)

	buf := make([]byte, 8)
	_, err = r.node.ReadData(nil, 1)
	require.ErrorIs(t, err, lin.ErrInvalidArgument)
	require.Equal(t, -1, lin.Code(err))
	_, err = r.node.ReadData(buf[:1], 2)
	require.ErrorIs(t, err, lin.ErrInvalidArgument)
	_, err = r.node.ReadData(buf, 2)
	require.ErrorIs(t, err, lin.ErrNotEnoughData)
	require.Equal(t, -2, lin.Code(err))
	require.Equal(t, 2, r.node.DataAvailable())
	n, err := r.node.ReadData(buf, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{0x42}, buf[:n])

	r.hostPort.Advance(10 * r.bus.BitPeriod())
	r.sendRaw(0x55, lin.ProtectedID(0x02), 0x42, 0x00)
	r.replay()
	_, err = r.node.ReadID()
	require.NoError(t, err)
	_, err = r.node.ReadData(buf, 1)
	require.ErrorIs(t, err, lin.ErrChecksumMismatch)
	require.Equal(t, -3, lin.Code(err))
	require.Equal(t, 0, r.node.DataAvailable())
}

func TestWaitForData(t *testing.T) {
	r := newTestRig(t, testPins)
	start := r.nodePort.Time()
	require.False(t, r.node.WaitForData(2))
	require.True(t, r.nodePort.Time()-start >= lin.MaxFrameDuration(testBaud))
}

func TestWaitForDataCompletesFrame(t *testing.T) {
	r := newTestRig(t, testPins)
	r.send(0x03, []byte{1, 2, 3})
	// stop polling right after the header
	headerEnd := (lin.BreakBits + lin.BreakDelimiterBits + 2*10) * r.bus.BitPeriod()
	r.nodePort.ReplayTo(headerEnd+r.bus.BitPeriod(), r.bus.BitPeriod()/4, func() {
		r.node.Available()
	})
	require.Equal(t, 1, r.node.Available())
	require.True(t, r.node.DataAvailable() < 5)
	r.nodePort.Advance(10 * r.bus.BitPeriod())
	r.node.Drain()
	id, err := r.node.ReadID()
	require.NoError(t, err)
	require.Equal(t, byte(0x03), id)
	require.True(t, r.node.WaitForData(3))
	buf := make([]byte, 3)
	n, err := r.node.ReadData(buf, 3)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, buf[:n])
}

func TestRoleViolation(t *testing.T) {
	r := newTestRig(t, testPins)
	err := r.node.WriteHeader(0x01)
	require.ErrorIs(t, err, lin.ErrRoleViolation)
	require.Equal(t, -1, lin.Code(err))
	require.Empty(t, r.nodePort.Written())

	_, err = r.host.WriteData(nil)
	require.ErrorIs(t, err, lin.ErrInvalidArgument)
	_, err = r.host.WriteData(make([]byte, 9))
	require.ErrorIs(t, err, lin.ErrInvalidArgument)
}

func TestHostReadsNodeResponse(t *testing.T) {
	r := newTestRig(t, testPins)
	require.NoError(t, r.host.WriteHeader(0x21))
	require.Equal(t, 1, r.replay())
	_, err := r.node.ReadID()
	require.ErrorIs(t, err, lin.ErrNotReady)
	id, err := r.node.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, byte(0x21), id)
	require.Equal(t, 0, r.node.Available())
	require.Equal(t, 0, r.node.DataAvailable())
	n, err := r.node.WriteData([]byte{0x10, 0x20, 0x30, 0x40})
	require.NoError(t, err)
	require.Equal(t, 4, n)

	require.True(t, r.host.WaitForData(4))
	require.Equal(t, 0, r.host.Available())
	buf := make([]byte, 4)
	n, err = r.host.ReadData(buf, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x10, 0x20, 0x30, 0x40}, buf[:n])
	require.Equal(t, []byte{0x55, lin.ProtectedID(0x21)}, r.hostPort.Written())
}

func TestSleepForce(t *testing.T) {
	r := newTestRig(t, testPins)
	require.NoError(t, r.host.Sleep(true))
	require.Equal(t, lin.StateSleep, r.host.State())

	written := r.hostPort.Written()
	require.Equal(t, []byte{0x55, 0x60, 0, 0, 0, 0, 0, 0, 0, 0, 0xff}, written)
	events := r.hostPort.Events()
	require.Equal(t, sim.EventBreak, events[0].Kind)
	last := events[len(events)-1]
	require.Equal(t, sim.EventChipSelect, last.Kind)
	require.Equal(t, lin.Low, last.Level)
	for _, ev := range events[:len(events)-1] {
		require.NotEqual(t, sim.EventChipSelect, ev.Kind)
	}
}

func TestSleepWithoutForce(t *testing.T) {
	r := newTestRig(t, testPins)
	require.NoError(t, r.host.Sleep(false))
	require.Empty(t, r.hostPort.Written())
	require.Equal(t, lin.Low, r.hostPort.ChipSelect())

	// forced sleep on a node sends nothing
	require.NoError(t, r.node.Sleep(true))
	require.Empty(t, r.nodePort.Written())
	require.Equal(t, lin.StateSleep, r.node.State())
}

func TestWake(t *testing.T) {
	r := newTestRig(t, testPins)
	require.NoError(t, r.node.Sleep(false))
	require.Equal(t, lin.Low, r.nodePort.ChipSelect())
	require.NoError(t, r.node.Wake())
	require.Equal(t, lin.StateReady, r.node.State())
	require.Equal(t, lin.High, r.nodePort.ChipSelect())
	require.Equal(t, []byte{lin.WakeByte}, r.nodePort.Written())

	r.hostPort.Reset()
	require.NoError(t, r.host.Wake())
	require.Empty(t, r.hostPort.Written())
}

func TestWakeWithoutTX(t *testing.T) {
	r := newTestRig(t, lin.Pins{RX: 0, TX: lin.NoPin, CS: 2})
	require.NoError(t, r.node.Sleep(false))
	require.NoError(t, r.node.Wake())
	require.Empty(t, r.nodePort.Written())
	require.Equal(t, lin.StateReady, r.node.State())
}

func TestFrameBufferOverflowDropsSilently(t *testing.T) {
	conf := lin.NewConfig()
	conf.FrameBufferSize = 4
	bus := sim.NewBus(testBaud)
	hostPort, nodePort := bus.Attach(testPins), bus.Attach(testPins)
	host, err := lin.NewHost(*conf, hostPort, hostPort, hostPort)
	require.NoError(t, err)
	node, err := lin.NewNode(*conf, nodePort, nodePort, nodePort)
	require.NoError(t, err)
	require.NoError(t, host.Begin(testBaud))
	require.NoError(t, node.Begin(testBaud))

	require.NoError(t, host.WriteHeader(0x04))
	_, err = host.WriteData([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	nodePort.ReplayTo(hostPort.Time(), bus.BitPeriod()/4, func() { node.Available() })

	require.Equal(t, 1, node.Available())
	require.Equal(t, 4, node.DataAvailable())
	require.Equal(t, uint64(4), node.Stats().Overflows)
	id, err := node.ReadID()
	require.NoError(t, err)
	require.Equal(t, byte(0x04), id)
	buf := make([]byte, 8)
	_, err = node.ReadData(buf, 5)
	require.ErrorIs(t, err, lin.ErrNotEnoughData)
}

func TestIdle(t *testing.T) {
	r := newTestRig(t, testPins)
	r.send(0x01, []byte{1})
	r.replay()
	last := r.node.LastBusActivity()
	require.True(t, last > 0)
	r.nodePort.Advance(time.Second)
	require.True(t, r.node.Idle() >= time.Second)
}

func TestZeroPayloadLeftUnread(t *testing.T) {
	r := newTestRig(t, testPins)
	// frame 0x03 is not read past its identifier
	r.send(0x03, []byte{0, 0, 0, 0})
	require.Equal(t, 1, r.replay())
	_, err := r.node.ReadHeader()
	require.NoError(t, err)

	r.hostPort.Advance(10 * r.bus.BitPeriod())
	r.send(0x02, []byte{0x42})
	// stop right after the break: a stale 0x00 is taken as the break
	breakEnd := r.hostPort.Time() - 4*10*r.bus.BitPeriod() - lin.BreakDelimiterBits*r.bus.BitPeriod()
	r.nodePort.ReplayTo(breakEnd+r.bus.BitPeriod(), 0, func() { r.node.Available() })
	require.Equal(t, 1, r.node.Available())
	_, err = r.node.ReadHeader()
	require.ErrorIs(t, err, lin.ErrSyncMismatch)
	require.NoError(t, r.node.NextHeader())
	require.Equal(t, 1, r.node.Available())

	require.Equal(t, 1, r.replay())
	id, err := r.node.ReadID()
	require.NoError(t, err)
	require.Equal(t, byte(0x02), id)
	buf := make([]byte, 1)
	_, err = r.node.ReadData(buf, 1)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), buf[0])
}

func TestDiscard(t *testing.T) {
	r := newTestRig(t, testPins)
	r.send(0x01, []byte{1, 2})
	require.Equal(t, 1, r.replay())
	require.Equal(t, 5, r.node.Discard())
	require.Equal(t, 0, r.node.Available())
	require.Equal(t, 0, r.node.DataAvailable())
	require.ErrorIs(t, r.node.NextHeader(), lin.ErrNotReady)
}

func TestSkipEcho(t *testing.T) {
	r := newTestRig(t, testPins)
	r.hostPort.Echo = true
	require.NoError(t, r.host.WriteHeader(0x30))
	require.True(t, r.host.SkipEcho(0x30))
	require.Equal(t, 0, r.host.DataAvailable())

	// the node response behind the echo is kept
	r.nodePort.ReplayTo(r.hostPort.Time(), 0, nil)
	_, err := r.node.WriteData([]byte{7, 8})
	require.NoError(t, err)
	require.True(t, r.host.WaitForData(2))
	buf := make([]byte, 2)
	_, err = r.host.ReadData(buf, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{7, 8}, buf)

	// nothing echoed
	r.hostPort.Echo = false
	require.NoError(t, r.host.WriteHeader(0x30))
	require.False(t, r.host.SkipEcho(0x30))
}
