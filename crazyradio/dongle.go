package crazyradio

import (
	"github.com/mikehamer/crazyclient/link"
)

// device is the USB side of a dongle: vendor control requests and one
// out/in transfer per radio packet.
type device interface {
	control(request command, value uint16, data []byte) error
	transfer(packet []byte) ([]byte, error)
	close() error
}

// Dongle configures a Crazyradio and exchanges packets through it.
type Dongle struct {
	dev     device
	address uint64
	known   bool
}

func newDongle(dev device) *Dongle {
	return &Dongle{dev: dev}
}

// Configure applies the link parameters and the usual power and
// retransmission settings.
func (d *Dongle) Configure(params link.Params) error {
	steps := []func() error{
		func() error { return d.SetDatarate(Datarate(params.Datarate)) },
		func() error { return d.SetChannel(params.Channel) },
		func() error { return d.SetAddress(params.Address) },
		func() error { return d.SetPower(Power0DBM) },
		func() error { return d.SetArc(defaultArc) },
		func() error { return d.SetArdBytes(defaultArdBytes) },
		func() error { return d.SetAckEnable(true) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dongle) Close() error {
	return d.dev.close()
}

func (d *Dongle) SetChannel(channel uint8) error {
	if channel > 125 {
		return ErrorInvalidChannel
	}
	return d.dev.control(setRadioChannel, uint16(channel), nil)
}

func (d *Dongle) SetDatarate(datarate Datarate) error {
	if datarate > Datarate2M {
		return ErrorInvalidDatarate
	}
	return d.dev.control(setDataRate, uint16(datarate), nil)
}

func (d *Dongle) SetPower(power Power) error {
	if power > Power0DBM {
		return ErrorInvalidPower
	}
	return d.dev.control(setRadioPower, uint16(power), nil)
}

func (d *Dongle) SetArc(arc uint8) error {
	if arc > 15 {
		return ErrorInvalidArc
	}
	return d.dev.control(setRadioARC, uint16(arc), nil)
}

// SetArdTime sets the auto retransmit delay in steps of 250us, 0x00 being
// 250us and 0x0F 4000us.
func (d *Dongle) SetArdTime(delay uint8) error {
	if delay > 0x0F {
		return ErrorInvalidArdTime
	}
	return d.dev.control(setRadioARD, uint16(delay), nil)
}

// SetArdBytes sets the retransmit delay from the ack payload size instead.
func (d *Dongle) SetArdBytes(nbytes uint8) error {
	if nbytes > 0x20 {
		return ErrorInvalidArdBytes
	}
	return d.dev.control(setRadioARD, uint16(0x80|nbytes), nil)
}

func (d *Dongle) SetAckEnable(enable bool) error {
	var value uint16
	if enable {
		value = 1
	}
	return d.dev.control(setAckEnable, value, nil)
}

func (d *Dongle) SetAddress(address uint64) error {
	if d.known && d.address == address {
		return nil
	}

	a := []byte{
		byte(address >> 32),
		byte(address >> 24),
		byte(address >> 16),
		byte(address >> 8),
		byte(address),
	}
	if err := d.dev.control(setRadioAddress, 0, a); err != nil {
		return err
	}

	d.address = address
	d.known = true
	return nil
}

// SendPacket transmits one packet and returns the acknowledgement payload.
//
// The first byte of the dongle's answer is a status: bit 0 ack received,
// bit 1 power detector, bits 4-7 retransmission count.
func (d *Dongle) SendPacket(packet []byte) (bool, []byte, error) {
	if len(packet) > 32 {
		return false, nil, ErrorPacketTooLarge
	}

	resp, err := d.dev.transfer(packet)
	if err != nil {
		return false, nil, err
	}
	if len(resp) == 0 {
		return false, nil, nil
	}

	ack := resp[0]&0x01 != 0
	return ack, resp[1:], nil
}
