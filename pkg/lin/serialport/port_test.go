package serialport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/robotalks/lin.go/pkg/lin"
)

var errFakeClosed = errors.New("fake closed")

type fakePort struct {
	lock    sync.Mutex
	modes   []serial.Mode
	written []byte
	drains  int
	dtr     bool
	cts     bool
	timeout time.Duration
	input   chan []byte
	fail    chan error
	closed  chan struct{}
	once    sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		input:  make(chan []byte, 16),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakePort) SetMode(mode *serial.Mode) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.modes = append(f.modes, *mode)
	return nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	select {
	case data := <-f.input:
		return copy(p, data), nil
	case err := <-f.fail:
		return 0, err
	case <-f.closed:
		return 0, errFakeClosed
	case <-time.After(f.readTimeout()):
		return 0, nil
	}
}

func (f *fakePort) readTimeout() time.Duration {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.timeout
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakePort) Drain() error {
	f.lock.Lock()
	f.drains++
	f.lock.Unlock()
	return nil
}

func (f *fakePort) ResetInputBuffer() error  { return nil }
func (f *fakePort) ResetOutputBuffer() error { return nil }

func (f *fakePort) SetDTR(dtr bool) error {
	f.lock.Lock()
	f.dtr = dtr
	f.lock.Unlock()
	return nil
}

func (f *fakePort) SetRTS(rts bool) error { return nil }

func (f *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return &serial.ModemStatusBits{CTS: f.cts}, nil
}

func (f *fakePort) SetReadTimeout(t time.Duration) error {
	f.lock.Lock()
	f.timeout = t
	f.lock.Unlock()
	return nil
}

func (f *fakePort) DTR() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.dtr
}

func (f *fakePort) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakePort) Break(time.Duration) error { return nil }

var testPins = lin.Pins{RX: 0, TX: 1, CS: 2}

func useFake(t *testing.T) (*Port, *fakePort) {
	fake := newFakePort()
	openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
		if name != "/dev/ttyLIN" {
			return nil, errors.New("unexpected port " + name)
		}
		fake.lock.Lock()
		fake.modes = append(fake.modes, *mode)
		fake.lock.Unlock()
		return fake, nil
	}
	t.Cleanup(func() { openPort = serial.Open })
	p := New(Config{Name: "/dev/ttyLIN"}, testPins)
	t.Cleanup(func() { p.Close() })
	return p, fake
}

func openFake(t *testing.T) (*Port, *fakePort) {
	p, fake := useFake(t)
	require.NoError(t, p.Begin(19200))
	require.Equal(t, defaultConfig.ReadTimeout, fake.readTimeout())
	return p, fake
}

func TestReceive(t *testing.T) {
	p, fake := openFake(t)
	fake.input <- []byte{0x55, 0xc1}
	fake.input <- []byte{0xaa}
	require.Eventually(t, func() bool { return p.Buffered() == 3 }, time.Second, time.Millisecond)
	for _, expected := range []byte{0x55, 0xc1, 0xaa} {
		b, err := p.ReadByte()
		require.NoError(t, err)
		require.Equal(t, expected, b)
	}
	_, err := p.ReadByte()
	require.ErrorIs(t, err, lin.ErrBufferEmpty)
}

func TestReceiveOverflow(t *testing.T) {
	fake := newFakePort()
	openPort = func(string, *serial.Mode) (serial.Port, error) { return fake, nil }
	defer func() { openPort = serial.Open }()
	p := New(Config{Name: "x", RXBufferSize: 2}, testPins)
	require.NoError(t, p.Begin(9600))
	defer p.Close()
	fake.input <- []byte{1, 2, 3, 4}
	require.Eventually(t, func() bool { return p.Dropped() == 2 }, time.Second, time.Millisecond)
	require.Equal(t, 2, p.Buffered())
}

func TestWriteAndFlush(t *testing.T) {
	p, fake := openFake(t)
	n, err := p.Write([]byte{0x55, 0xc1})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, p.Flush())
	require.Equal(t, []byte{0x55, 0xc1}, fake.written)
	require.Equal(t, 1, fake.drains)

	require.NoError(t, p.End())
	_, err = p.Write([]byte{1})
	require.ErrorIs(t, err, ErrStopped)
	require.NoError(t, p.Begin(9600))
	require.Equal(t, 9600, fake.modes[len(fake.modes)-1].BaudRate)
	_, err = p.Write([]byte{1})
	require.NoError(t, err)
}

func TestBreak(t *testing.T) {
	p, fake := openFake(t)
	require.NoError(t, p.End())
	p.Set(testPins.TX, lin.Low)
	require.Equal(t, lin.Low, p.Get(testPins.TX))
	require.Equal(t, 19200*9/13, fake.modes[len(fake.modes)-1].BaudRate)
	require.Equal(t, []byte{0}, fake.written)
	p.Set(testPins.TX, lin.High)
	require.Equal(t, lin.High, p.Get(testPins.TX))
	require.Equal(t, 19200, fake.modes[len(fake.modes)-1].BaudRate)
	require.Equal(t, 1, fake.drains)

	// TX is owned by the UART while running
	require.NoError(t, p.Begin(19200))
	p.Set(testPins.TX, lin.Low)
	require.Equal(t, []byte{0}, fake.written)
}

func TestModemLines(t *testing.T) {
	p, fake := openFake(t)
	p.Set(testPins.CS, lin.High)
	require.True(t, fake.dtr)
	require.Equal(t, lin.High, p.Get(testPins.CS))
	p.Set(testPins.CS, lin.Low)
	require.False(t, fake.dtr)
	require.Equal(t, lin.Low, p.Get(testPins.CS))

	require.Equal(t, lin.Low, p.Get(testPins.RX))
	fake.lock.Lock()
	fake.cts = true
	fake.lock.Unlock()
	require.Equal(t, lin.High, p.Get(testPins.RX))
}

func TestClose(t *testing.T) {
	p, _ := openFake(t)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, err := p.Write([]byte{1})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, p.End(), ErrClosed)
	require.ErrorIs(t, p.Flush(), ErrClosed)
}

func TestReadError(t *testing.T) {
	p, fake := openFake(t)
	fake.input <- []byte{0x55}
	require.Eventually(t, func() bool { return p.Buffered() == 1 }, time.Second, time.Millisecond)
	fake.Close()
	b, err := p.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x55), b)
	require.Eventually(t, func() bool {
		_, err := p.ReadByte()
		return errors.Is(err, errFakeClosed)
	}, time.Second, time.Millisecond)
}

func TestReaderRestart(t *testing.T) {
	p, fake := openFake(t)
	fake.fail <- errors.New("device reset")
	require.Eventually(t, func() bool { return p.Err() != nil }, time.Second, time.Millisecond)
	_, err := p.ReadByte()
	require.EqualError(t, err, "device reset")

	require.NoError(t, p.Begin(19200))
	require.NoError(t, p.Err())
	fake.input <- []byte{0x55}
	require.Eventually(t, func() bool { return p.Buffered() == 1 }, time.Second, time.Millisecond)
	b, err := p.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x55), b)
}

func TestEngineBeginEnablesTransceiver(t *testing.T) {
	p, fake := useFake(t)
	conf := lin.NewConfig()
	conf.Pins = testPins
	engine, err := lin.NewNode(*conf, p, p, lin.SystemClock())
	require.NoError(t, err)
	require.NoError(t, engine.Begin(19200))
	require.True(t, fake.DTR())
	require.Equal(t, lin.High, p.Get(testPins.CS))
	require.Equal(t, lin.StateReady, engine.State())

	require.NoError(t, engine.Sleep(false))
	require.False(t, fake.DTR())
	require.Equal(t, lin.Low, p.Get(testPins.CS))
}
