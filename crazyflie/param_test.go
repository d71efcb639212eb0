package crazyflie

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/mikehamer/crazyclient/crtp"
	"github.com/mikehamer/crazyclient/link/stub"
	"github.com/mikehamer/crazyclient/toc"
)

func connectWithParams(t *testing.T, l *stub.Link, cfg Config) *Crazyflie {
	t.Helper()
	cf, _ := newSession(t, l, cfg)
	require.True(t, connect(t, cf))
	require.Eventually(t, func() bool {
		_, ok := cf.Toc(crtp.PortParam)
		return ok
	}, waitFor, pollEvery)
	return cf
}

func TestReadParam(t *testing.T) {
	cf := connectWithParams(t, stub.Crazyflie(), Config{})

	v, err := cf.ReadParam(context.Background(), "firmware.revision0")
	require.NoError(t, err)
	assert.Equal(t, uint32(0xBEEF), v)

	v, err = cf.ReadParam(context.Background(), "pid_rate.roll_kp")
	require.NoError(t, err)
	assert.Equal(t, float32(250), v)
}

func TestWriteParamThenRead(t *testing.T) {
	l := stub.Crazyflie()
	cf := connectWithParams(t, l, Config{})

	require.NoError(t, cf.WriteParam(context.Background(), "flightmode.althold", 1))
	assert.Equal(t, []byte{1}, l.Value(3))

	v, err := cf.ReadParam(context.Background(), "flightmode.althold")
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v)

	require.NoError(t, cf.WriteParam(context.Background(), "flightmode.althold", 400))
	v, err = cf.ReadParam(context.Background(), "flightmode.althold")
	require.NoError(t, err)
	assert.Equal(t, uint8(255), v)
}

func TestParamProtocolV2(t *testing.T) {
	l := stub.New(stub.Config{
		ParamV2: true,
		Params: []toc.Entry{
			{ID: 0, Group: "ring", Name: "effect", Type: toc.Uint8},
			{ID: 1, Group: "ring", Name: "speed", Type: toc.Int16},
		},
		Values: map[string]float64{"ring.speed": -20},
	})
	cf := connectWithParams(t, l, Config{Toc: toc.Config{V2: true}})

	v, err := cf.ReadParam(context.Background(), "ring.speed")
	require.NoError(t, err)
	assert.Equal(t, int16(-20), v)

	require.NoError(t, cf.WriteParam(context.Background(), "ring.speed", 300))
	v, err = cf.ReadParam(context.Background(), "ring.speed")
	require.NoError(t, err)
	assert.Equal(t, int16(300), v)
}

func TestWriteParamRejects(t *testing.T) {
	cf := connectWithParams(t, stub.Crazyflie(), Config{})
	ctx := context.Background()

	assert.ErrorIs(t, cf.WriteParam(ctx, "firmware.revision0", 1), ErrorParamReadOnly)
	assert.ErrorIs(t, cf.WriteParam(ctx, "no.such", 1), ErrorParamNotFound)
	assert.ErrorIs(t, cf.WriteParam(ctx, "flightmode.althold", math.NaN()), toc.ErrorValueOutOfRange)

	_, err := cf.ReadParam(ctx, "no.such")
	assert.ErrorIs(t, err, ErrorParamNotFound)
}

func TestParamNeedsConnection(t *testing.T) {
	cf, _ := newSession(t, stub.Crazyflie(), Config{})

	_, err := cf.ReadParam(context.Background(), "pid_rate.roll_kp")
	assert.ErrorIs(t, err, ErrorNotConnected)
}

func TestParamNeedsToc(t *testing.T) {
	cf, _ := newSession(t, stub.New(stub.Config{Silent: true}), Config{})
	require.True(t, connect(t, cf))

	_, err := cf.ReadParam(context.Background(), "pid_rate.roll_kp")
	assert.ErrorIs(t, err, ErrorTocNotLoaded)
}

type mutedValues struct {
	*stub.Link
	swallowed *atomic.Int64
}

// SendPacket swallows value requests so they are never answered.
func (m mutedValues) SendPacket(data []byte, callback func(error)) {
	port, channel, err := crtp.DecodeHeader(data)
	if err == nil && port == crtp.PortParam && channel != 0 {
		m.swallowed.Inc()
		if callback != nil {
			callback(nil)
		}
		return
	}
	m.Link.SendPacket(data, callback)
}

func TestReadParamGivesUp(t *testing.T) {
	muted := mutedValues{Link: stub.Crazyflie(), swallowed: atomic.NewInt64(0)}
	cf, _ := newSession(t, muted, Config{ParamTimeout: 5 * time.Millisecond})
	require.True(t, connect(t, cf))
	require.Eventually(t, func() bool {
		_, ok := cf.Toc(crtp.PortParam)
		return ok
	}, waitFor, pollEvery)

	_, err := cf.ReadParam(context.Background(), "pid_rate.roll_kp")
	assert.ErrorIs(t, err, ErrorNoResponse)

	assert.Equal(t, int64(paramAttempts), muted.swallowed.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cf.ReadParam(ctx, "pid_rate.roll_kp")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParamResponseLoadFromBytes(t *testing.T) {
	resp := &paramResponse{}
	require.NoError(t, resp.LoadFromBytes([]byte{crtp.HeaderByte(crtp.PortParam, 1), 0x07, 0xAA}, false))
	assert.Equal(t, uint16(7), resp.ID)
	assert.Equal(t, []byte{0xAA}, resp.Data)

	require.NoError(t, resp.LoadFromBytes([]byte{crtp.HeaderByte(crtp.PortParam, 1), 0x07, 0x01, 0x00, 0xAA}, true))
	assert.Equal(t, uint16(0x107), resp.ID)
	assert.Equal(t, []byte{0xAA}, resp.Data)

	require.NoError(t, resp.LoadFromBytes([]byte{crtp.HeaderByte(crtp.PortParam, 2), 0x07, 0x01, 0xAA}, true))
	assert.Equal(t, paramWriteChannel, resp.Channel)
	assert.Equal(t, []byte{0xAA}, resp.Data)

	assert.Error(t, resp.LoadFromBytes([]byte{crtp.HeaderByte(crtp.PortParam, 1), 0x07}, true))
	assert.ErrorIs(t, resp.LoadFromBytes([]byte{crtp.HeaderByte(crtp.PortParam, 0), 0x07}, false), crtp.ErrorPacketIncorrectType)
}

func TestParamRequestBytes(t *testing.T) {
	assert.Equal(t, []byte{0x05}, (&paramRequestRead{ID: 5}).Bytes())
	assert.Equal(t, []byte{0x05, 0x01}, (&paramRequestRead{ID: 0x105, V2: true}).Bytes())
	assert.Equal(t, []byte{0x05, 0xAA, 0xBB}, (&paramRequestWrite{ID: 5, Data: []byte{0xAA, 0xBB}}).Bytes())
}
