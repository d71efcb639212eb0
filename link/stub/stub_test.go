package stub

import (
	"encoding/binary"
	"hash/fnv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikehamer/crazyclient/crtp"
	"github.com/mikehamer/crazyclient/toc"
)

func TestChecksumIsFNV1a(t *testing.T) {
	entries := []toc.Entry{
		{ID: 0, Group: "pm", Name: "vbat", Type: toc.FP16},
		{ID: 1, Group: "motor", Name: "m1", Type: toc.Uint16},
	}

	h := fnv.New32a()
	h.Write([]byte("pm.vbat"))
	h.Write([]byte{byte(toc.FP16)})
	h.Write([]byte("motor.m1"))
	h.Write([]byte{byte(toc.Uint16)})

	assert.Equal(t, h.Sum32(), checksum(entries))
	assert.NotEqual(t, checksum(entries), checksum(entries[:1]))
}

func TestInfoAnnouncesChecksum(t *testing.T) {
	l := Crazyflie()
	var got [][]byte
	l.OnPacket(func(data []byte) { got = append(got, data) })
	l.Connect(l.params, nil)
	require.Eventually(t, l.Connected, time.Second, time.Millisecond)

	l.SendPacket([]byte{crtp.HeaderByte(crtp.PortLog, 0), 0x01}, nil)

	require.Len(t, got, 1)
	assert.Equal(t, byte(4), got[0][2])
	assert.Equal(t, checksum(l.cfg.Logs), binary.LittleEndian.Uint32(got[0][3:7]))
}
