package crazyradio

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikehamer/crazyclient/link"
)

func TestMain(m *testing.M) {
	pingInterval = time.Millisecond
	os.Exit(m.Run())
}

type controlCall struct {
	request command
	value   uint16
	data    []byte
}

type fakeDevice struct {
	mu       sync.Mutex
	controls []controlCall
	sent     [][]byte
	ack      bool
	replies  [][]byte
	closed   bool

	// transfers wait on gate while it is set
	gate    chan struct{}
	waiting int
}

func (f *fakeDevice) control(request command, value uint16, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, controlCall{request, value, append([]byte(nil), data...)})
	return nil
}

func (f *fakeDevice) transfer(packet []byte) ([]byte, error) {
	f.mu.Lock()
	gate := f.gate
	if gate != nil {
		f.waiting++
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), packet...))
	if !f.ack {
		return []byte{0x00}, nil
	}
	resp := []byte{0x01}
	if len(f.replies) > 0 {
		resp = append(resp, f.replies[0]...)
		f.replies = f.replies[1:]
	}
	return resp, nil
}

func (f *fakeDevice) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDevice) setAck(ack bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ack = ack
}

func (f *fakeDevice) reply(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, payload)
}

func (f *fakeDevice) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.waiting = 0
	return f.gate
}

func (f *fakeDevice) held() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting
}

func (f *fakeDevice) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeDevice) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

type stateLog struct {
	mu     sync.Mutex
	states []string
}

func (s *stateLog) add(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *stateLog) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.states...)
}

func newTestLink(dev *fakeDevice, openErr error) (*Link, *stateLog) {
	l := newLink(func(int) (device, error) {
		if openErr != nil {
			return nil, openErr
		}
		return dev, nil
	}, nil)
	states := &stateLog{}
	l.OnStateUpdated(states.add)
	return l, states
}

func connectLink(t *testing.T, l *Link, timeout time.Duration) bool {
	t.Helper()
	params, err := link.ParseURI("radio://0/80/2M/E7E7E7E7E7")
	require.NoError(t, err)
	params.Timeout = timeout

	result := make(chan bool, 1)
	l.Connect(params, func(connected bool) { result <- connected })
	select {
	case connected := <-result:
		return connected
	case <-time.After(2 * time.Second):
		t.Fatal("connect never finished")
		return false
	}
}

func TestDongleConfigure(t *testing.T) {
	dev := &fakeDevice{}
	d := newDongle(dev)

	params, err := link.ParseURI("radio://0/60/250K/E7E7E7E701")
	require.NoError(t, err)
	require.NoError(t, d.Configure(params))

	assert.Equal(t, []controlCall{
		{setDataRate, uint16(Datarate250K), []byte{}},
		{setRadioChannel, 60, []byte{}},
		{setRadioAddress, 0, []byte{0xE7, 0xE7, 0xE7, 0xE7, 0x01}},
		{setRadioPower, uint16(Power0DBM), []byte{}},
		{setRadioARC, 3, []byte{}},
		{setRadioARD, 0x80 | 32, []byte{}},
		{setAckEnable, 1, []byte{}},
	}, normalize(dev.controls))
}

// normalize makes nil and empty payloads compare equal.
func normalize(calls []controlCall) []controlCall {
	for i := range calls {
		if calls[i].data == nil {
			calls[i].data = []byte{}
		}
	}
	return calls
}

func TestDongleValidation(t *testing.T) {
	dev := &fakeDevice{}
	d := newDongle(dev)

	assert.Equal(t, ErrorInvalidChannel, d.SetChannel(126))
	assert.Equal(t, ErrorInvalidDatarate, d.SetDatarate(3))
	assert.Equal(t, ErrorInvalidPower, d.SetPower(4))
	assert.Equal(t, ErrorInvalidArc, d.SetArc(16))
	assert.Equal(t, ErrorInvalidArdTime, d.SetArdTime(0x10))
	assert.Equal(t, ErrorInvalidArdBytes, d.SetArdBytes(33))
	assert.Empty(t, dev.controls)

	require.NoError(t, d.SetAddress(0xE7E7E7E7E7))
	require.NoError(t, d.SetAddress(0xE7E7E7E7E7))
	assert.Len(t, dev.controls, 1)
}

func TestDongleSendPacket(t *testing.T) {
	dev := &fakeDevice{ack: true}
	dev.reply([]byte{0x00, 'h', 'i'})
	d := newDongle(dev)

	ack, payload, err := d.SendPacket([]byte{0x30, 1, 2})
	require.NoError(t, err)
	assert.True(t, ack)
	assert.Equal(t, []byte{0x00, 'h', 'i'}, payload)

	_, _, err = d.SendPacket(make([]byte, 33))
	assert.Equal(t, ErrorPacketTooLarge, err)
}

func TestConnectRadioNotFound(t *testing.T) {
	l, states := newTestLink(nil, ErrorDeviceNotFound)

	assert.False(t, connectLink(t, l, time.Second))
	assert.Equal(t, link.ErrorRadioNotFound, l.LastError())
	assert.Equal(t, []string{"scanning", "idle"}, states.get())
}

func TestConnectTimeout(t *testing.T) {
	dev := &fakeDevice{}
	l, states := newTestLink(dev, nil)

	assert.False(t, connectLink(t, l, 30*time.Millisecond))
	assert.Equal(t, link.ErrorTimeout, l.LastError())
	assert.Equal(t, []string{"scanning", "connecting", "idle"}, states.get())
	assert.True(t, dev.isClosed())
	assert.NotEmpty(t, dev.sentFrames())
}

func TestConnectSendAndReceive(t *testing.T) {
	dev := &fakeDevice{ack: true}
	l, states := newTestLink(dev, nil)
	t.Cleanup(l.Disconnect)

	received := make(chan []byte, 8)
	l.OnPacket(func(data []byte) { received <- data })

	require.True(t, connectLink(t, l, time.Second))
	assert.Equal(t, []string{"scanning", "connecting", "connected"}, states.get())

	dev.reply([]byte{0x00, 'o', 'k', '\n'})
	select {
	case frame := <-received:
		assert.Equal(t, []byte{0x00, 'o', 'k', '\n'}, frame)
	case <-time.After(time.Second):
		t.Fatal("ack payload never delivered")
	}

	done := make(chan error, 1)
	l.SendPacket([]byte{0x30, 0xAA}, func(err error) { done <- err })
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("send callback never ran")
	}

	assert.Contains(t, dev.sentFrames(), []byte{0x30, 0xAA})
	sent, lost := l.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Zero(t, lost)
}

func TestSendWhenNotConnected(t *testing.T) {
	l, _ := newTestLink(&fakeDevice{}, nil)

	var got error
	l.SendPacket([]byte{0x30}, func(err error) { got = err })
	assert.Equal(t, ErrorNotConnected, got)
}

func TestDisconnectClosesDongle(t *testing.T) {
	dev := &fakeDevice{ack: true}
	l, states := newTestLink(dev, nil)

	require.True(t, connectLink(t, l, time.Second))
	l.Disconnect()

	assert.True(t, dev.isClosed())
	assert.Equal(t, "idle", states.get()[len(states.get())-1])

	var got error
	l.SendPacket([]byte{0x30}, func(err error) { got = err })
	assert.Equal(t, ErrorNotConnected, got)
}

func TestLinkLost(t *testing.T) {
	dev := &fakeDevice{ack: true}
	l, states := newTestLink(dev, nil)

	require.True(t, connectLink(t, l, time.Second))
	dev.setAck(false)

	require.Eventually(t, func() bool {
		s := states.get()
		return s[len(s)-1] == "idle"
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, link.ErrorTimeout, l.LastError())
	assert.True(t, dev.isClosed())
}

func TestPriorityFramesJumpTheQueue(t *testing.T) {
	dev := &fakeDevice{ack: true}
	l, _ := newTestLink(dev, nil)
	t.Cleanup(l.Disconnect)

	require.True(t, connectLink(t, l, time.Second))

	// park the worker on a ping so nothing leaves while the queues fill
	gate := dev.hold()
	require.Eventually(t, func() bool { return dev.held() == 1 }, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	send := func(data []byte, priority bool) {
		wg.Add(1)
		callback := func(err error) {
			assert.NoError(t, err)
			wg.Done()
		}
		if priority {
			l.SendPriority(data, callback)
		} else {
			l.SendPacket(data, callback)
		}
	}
	send([]byte{0x70, 1}, false)
	send([]byte{0x70, 2}, false)
	send([]byte{0x30, 0xC0}, true)
	send([]byte{0x70, 3}, false)
	close(gate)
	wg.Wait()

	var frames [][]byte
	for _, f := range dev.sentFrames() {
		if f[0] != pingPacket[0] {
			frames = append(frames, f)
		}
	}
	assert.Equal(t, [][]byte{{0x30, 0xC0}, {0x70, 1}, {0x70, 2}, {0x70, 3}}, frames)
}
