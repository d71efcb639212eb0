package crazyradio

import (
	"time"

	"github.com/google/gousb"
)

const (
	VendorID  gousb.ID = 0x1915
	ProductID gousb.ID = 0x7777
)

type Datarate uint16

const (
	Datarate250K Datarate = iota
	Datarate1M
	Datarate2M
)

type Power uint16

const (
	PowerM18DBM Power = iota
	PowerM12DBM
	PowerM6DBM
	Power0DBM
)

// vendor control requests understood by the dongle firmware
type command uint8

const (
	setRadioChannel command = 0x01
	setRadioAddress command = 0x02
	setDataRate     command = 0x03
	setRadioPower   command = 0x04
	setRadioARD     command = 0x05
	setRadioARC     command = 0x06
	setAckEnable    command = 0x10
)

var (
	// pingPacket is a null packet on the link port, sent whenever there is
	// nothing to transmit so the Crazyflie can answer in the ack.
	pingPacket = []byte{0xFF}

	pingInterval    = 10 * time.Millisecond
	controlTimeout  = 250 * time.Millisecond
	transferTimeout = 50 * time.Millisecond
)

const (
	defaultArc      = 3
	defaultArdBytes = 32

	// attempts at one queued packet before it is dropped
	sendRetries = 5
	// consecutive missing acks after which the link counts as lost
	lostAfter = 100
)
