// Package link describes the transport a Crazyflie session drives.
package link

import (
	"time"
)

// Error strings reported through LastError.
const (
	ErrorBluetoothDisabled = "Bluetooth disabled"
	ErrorRadioNotFound     = "Radio not found"
	ErrorTimeout           = "Timeout"
)

// Link is a connection to one Crazyflie. Callbacks may be invoked from any
// goroutine, including synchronously from within the calling method.
type Link interface {
	Connect(params Params, callback func(connected bool))
	Disconnect()

	// SendPacket queues one CRTP frame. The callback, if any, reports whether
	// the frame left the host; there is no delivery guarantee.
	SendPacket(data []byte, callback func(err error))

	OnStateUpdated(handler func(state string))
	OnPacket(handler func(data []byte))

	// LastError describes the most recent failure, "" if none.
	LastError() string
}

// PrioritySender is implemented by links that can put a frame ahead of
// everything already queued. The session sends commander setpoints through it
// when the link offers it.
type PrioritySender interface {
	SendPriority(data []byte, callback func(err error))
}

// Params selects which Crazyflie to connect to.
type Params struct {
	Scheme string

	// Name is the advertised name prefix for Bluetooth, or the stub name.
	Name string

	// Radio addressing
	Dongle   int
	Channel  uint8
	Datarate Datarate
	Address  uint64

	Timeout time.Duration
}

type Datarate uint8

const (
	Datarate250K Datarate = iota
	Datarate1M
	Datarate2M
)

func (d Datarate) String() string {
	switch d {
	case Datarate250K:
		return "250K"
	case Datarate1M:
		return "1M"
	default:
		return "2M"
	}
}

const (
	DefaultAddress  uint64 = 0xE7E7E7E7E7
	DefaultChannel  uint8  = 80
	DefaultBLEName         = "Crazyflie"
	DefaultTimeout         = 10 * time.Second
)
