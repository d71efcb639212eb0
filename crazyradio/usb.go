package crazyradio

import (
	"context"

	"github.com/google/gousb"
)

type usbDevice struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	done func()
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
}

// openUSB opens the index-th Crazyradio on the bus.
func openUSB(index int) (device, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == VendorID && desc.Product == ProductID
	})
	if index < 0 || index >= len(devs) {
		for _, d := range devs {
			d.Close()
		}
		ctx.Close()
		if err != nil {
			return nil, err
		}
		return nil, ErrorDeviceNotFound
	}

	dev := devs[index]
	for i, d := range devs {
		if i != index {
			d.Close()
		}
	}

	u, err := openEndpoints(ctx, dev)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	return u, nil
}

func openEndpoints(ctx *gousb.Context, dev *gousb.Device) (*usbDevice, error) {
	dev.ControlTimeout = controlTimeout
	if err := dev.SetAutoDetach(true); err != nil {
		return nil, err
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		return nil, err
	}

	out, err := intf.OutEndpoint(1)
	if err != nil {
		done()
		return nil, err
	}

	in, err := intf.InEndpoint(1)
	if err != nil {
		done()
		return nil, err
	}

	return &usbDevice{ctx: ctx, dev: dev, done: done, out: out, in: in}, nil
}

func (u *usbDevice) control(request command, value uint16, data []byte) error {
	rType := uint8(gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice)
	_, err := u.dev.Control(rType, uint8(request), value, 0, data)
	return err
}

func (u *usbDevice) transfer(packet []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), transferTimeout)
	defer cancel()

	n, err := u.out.WriteContext(ctx, packet)
	if err != nil {
		return nil, err
	}
	if n != len(packet) {
		return nil, ErrorWriteLength
	}

	resp := make([]byte, 64)
	n, err = u.in.ReadContext(ctx, resp)
	if err != nil {
		return nil, err
	}
	return resp[:n], nil
}

func (u *usbDevice) close() error {
	u.done()
	err := u.dev.Close()
	u.ctx.Close()
	return err
}
