package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURIRadio(t *testing.T) {
	p, err := ParseURI("radio://0/10/250K/E7E7E7E701")
	require.NoError(t, err)
	assert.Equal(t, "radio", p.Scheme)
	assert.Equal(t, 0, p.Dongle)
	assert.Equal(t, uint8(10), p.Channel)
	assert.Equal(t, Datarate250K, p.Datarate)
	assert.Equal(t, uint64(0xE7E7E7E701), p.Address)
}

func TestParseURIRadioDefaults(t *testing.T) {
	p, err := ParseURI("radio://1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Dongle)
	assert.Equal(t, DefaultChannel, p.Channel)
	assert.Equal(t, Datarate2M, p.Datarate)
	assert.Equal(t, DefaultAddress, p.Address)
}

func TestParseURIBLE(t *testing.T) {
	p, err := ParseURI("ble://")
	require.NoError(t, err)
	assert.Equal(t, DefaultBLEName, p.Name)

	p, err = ParseURI("ble://CF2-Lab")
	require.NoError(t, err)
	assert.Equal(t, "CF2-Lab", p.Name)
}

func TestParseURIErrors(t *testing.T) {
	for _, uri := range []string{
		"usb://0",
		"radio://0/200",
		"radio://0/80/3M",
		"radio://0/80/2M/zz",
		"radio://x",
	} {
		_, err := ParseURI(uri)
		assert.Error(t, err, uri)
	}
}
