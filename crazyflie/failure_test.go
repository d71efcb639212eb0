package crazyflie

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mikehamer/crazyclient/link"
)

func TestFailureFromTransport(t *testing.T) {
	cases := []struct {
		lastError string
		want      Failure
	}{
		{link.ErrorBluetoothDisabled, Failure{FailureTransportUnavailable, "Bluetooth disabled", "Please enable Bluetooth to connect a Crazyflie"}},
		{link.ErrorRadioNotFound, Failure{FailureTransportUnavailable, "Radio not found", "Please plug in a Crazyradio to connect a Crazyflie"}},
		{link.ErrorTimeout, Failure{FailureConnectionTimeout, "Connection timeout", "Could not find Crazyflie"}},
		{"GATT error 133", Failure{FailureTransportOther, "Error", "GATT error 133"}},
		{"", Failure{FailureTransportOther, "Error", ""}},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, FailureFromTransport(c.lastError), c.lastError)
	}
}

func TestFailureError(t *testing.T) {
	f := FailureFromTransport(link.ErrorTimeout)
	assert.Equal(t, "crazyflie: Connection timeout: Could not find Crazyflie", f.Error())
	assert.Equal(t, "connection timeout", f.Kind.String())
}
