// Package ble connects to a Crazyflie 2.x over Bluetooth Low Energy.
package ble

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/mikehamer/crazyclient/link"
)

var (
	ServiceUUID   = mustParseUUID("00000201-1c7f-4f9e-947b-43b7c00a9a08")
	CrtpUUID      = mustParseUUID("00000202-1c7f-4f9e-947b-43b7c00a9a08")
	CrtpUpUUID    = mustParseUUID("00000203-1c7f-4f9e-947b-43b7c00a9a08")
	CrtpDownUUID  = mustParseUUID("00000204-1c7f-4f9e-947b-43b7c00a9a08")
	errNotLinked  = linkError("not connected")
	errOversize   = linkError("packet larger than 32 bytes")
	errNoServices = linkError("crazyflie service not found")
)

type linkError string

func (e linkError) Error() string {
	return "ble: " + string(e)
}

func mustParseUUID(s string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return uuid
}

// Link implements link.Link on top of the system Bluetooth adapter.
type Link struct {
	adapter *bluetooth.Adapter
	log     *zap.Logger

	// bumped by every Connect and Disconnect; a connect sequence that sees a
	// newer attempt gives up
	attempt *atomic.Uint64
	pid     *atomic.Uint32

	mu        sync.Mutex
	onState   func(string)
	onPacket  func([]byte)
	lastError string
	device    bluetooth.Device
	address   string
	linked    bool
	crtp      bluetooth.DeviceCharacteristic
	crtpUp    bluetooth.DeviceCharacteristic
	down      assembler

	writeMu sync.Mutex
}

var _ link.Link = (*Link)(nil)

func New(logger *zap.Logger) *Link {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Link{
		adapter: bluetooth.DefaultAdapter,
		log:     logger.Named("ble"),
		attempt: atomic.NewUint64(0),
		pid:     atomic.NewUint32(0),
	}
}

func (l *Link) OnStateUpdated(handler func(state string)) {
	l.mu.Lock()
	l.onState = handler
	l.mu.Unlock()
}

func (l *Link) OnPacket(handler func(data []byte)) {
	l.mu.Lock()
	l.onPacket = handler
	l.mu.Unlock()
}

func (l *Link) LastError() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastError
}

// Connect scans for a device whose advertised name starts with params.Name
// and runs the discovery sequence on its own goroutine.
func (l *Link) Connect(params link.Params, callback func(connected bool)) {
	attempt := l.attempt.Inc()

	l.mu.Lock()
	l.lastError = ""
	l.mu.Unlock()

	go func() {
		connected := l.connect(params, attempt)
		if callback != nil {
			callback(connected)
		}
	}()
}

func (l *Link) connect(params link.Params, attempt uint64) bool {
	if params.Name == "" {
		params.Name = link.DefaultBLEName
	}
	if params.Timeout <= 0 {
		params.Timeout = link.DefaultTimeout
	}

	l.report("scanning")
	if err := l.adapter.Enable(); err != nil {
		l.log.Warn("adapter unavailable", zap.Error(err))
		return l.fail(attempt, link.ErrorBluetoothDisabled)
	}
	l.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if !connected {
			l.dropped(device.Address.String())
		}
	})

	result, found := l.scan(params)
	if !l.current(attempt) {
		return false
	}
	if !found {
		return l.fail(attempt, link.ErrorTimeout)
	}

	l.report("connecting")
	l.log.Info("connecting", zap.String("name", result.LocalName()), zap.String("address", result.Address.String()))
	device, err := l.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return l.fail(attempt, err.Error())
	}
	if !l.current(attempt) {
		device.Disconnect()
		return false
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{ServiceUUID})
	if err == nil && len(services) == 0 {
		err = errNoServices
	}
	if err != nil {
		device.Disconnect()
		return l.fail(attempt, err.Error())
	}
	l.report("services")

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{CrtpUUID, CrtpUpUUID, CrtpDownUUID})
	if err != nil || len(chars) < 3 {
		device.Disconnect()
		if err == nil {
			err = linkError("missing crtp characteristics")
		}
		return l.fail(attempt, err.Error())
	}
	l.report("characteristics")

	var crtp, up, down bluetooth.DeviceCharacteristic
	for _, c := range chars {
		switch c.UUID() {
		case CrtpUUID:
			crtp = c
		case CrtpUpUUID:
			up = c
		case CrtpDownUUID:
			down = c
		}
	}

	if err := down.EnableNotifications(l.notification); err != nil {
		device.Disconnect()
		return l.fail(attempt, err.Error())
	}

	l.mu.Lock()
	if l.attempt.Load() != attempt {
		l.mu.Unlock()
		device.Disconnect()
		return false
	}
	l.device = device
	l.address = result.Address.String()
	l.crtp = crtp
	l.crtpUp = up
	l.linked = true
	l.down.reset()
	l.mu.Unlock()

	l.report("connected")
	return true
}

func (l *Link) scan(params link.Params) (bluetooth.ScanResult, bool) {
	var (
		result bluetooth.ScanResult
		found  bool
	)

	timer := time.AfterFunc(params.Timeout, func() {
		l.adapter.StopScan()
	})
	defer timer.Stop()

	err := l.adapter.Scan(func(adapter *bluetooth.Adapter, r bluetooth.ScanResult) {
		if strings.HasPrefix(r.LocalName(), params.Name) {
			result = r
			found = true
			adapter.StopScan()
		}
	})
	if err != nil {
		l.log.Debug("scan ended", zap.Error(err))
	}
	return result, found
}

func (l *Link) current(attempt uint64) bool {
	return l.attempt.Load() == attempt
}

func (l *Link) fail(attempt uint64, reason string) bool {
	if !l.current(attempt) {
		return false
	}
	l.mu.Lock()
	l.lastError = reason
	l.mu.Unlock()

	l.log.Warn("connect failed", zap.String("reason", reason))
	l.report("idle")
	return false
}

func (l *Link) Disconnect() {
	l.attempt.Inc()
	l.adapter.StopScan()

	l.mu.Lock()
	device, linked := l.device, l.linked
	l.linked = false
	l.device = bluetooth.Device{}
	l.address = ""
	l.mu.Unlock()

	if linked {
		if err := device.Disconnect(); err != nil {
			l.log.Debug("disconnect", zap.Error(err))
		}
	}
	l.report("idle")
}

// dropped handles the peripheral going away on its own: out of range, battery
// pulled or rebooted. Anything but the linked device is ignored.
func (l *Link) dropped(address string) {
	l.mu.Lock()
	if !l.linked || l.address != address {
		l.mu.Unlock()
		return
	}
	l.linked = false
	l.device = bluetooth.Device{}
	l.address = ""
	l.lastError = link.ErrorTimeout
	l.mu.Unlock()

	l.log.Warn("peripheral disconnected", zap.String("address", address))
	l.report("idle")
}

// SendPacket writes frames of up to MTU bytes to the crtp characteristic and
// fragments anything longer onto crtpUp.
func (l *Link) SendPacket(data []byte, callback func(err error)) {
	err := l.write(data)
	if callback != nil {
		callback(err)
	}
}

func (l *Link) write(data []byte) error {
	if len(data) > maxPacket {
		return errOversize
	}

	l.mu.Lock()
	crtp, up, linked := l.crtp, l.crtpUp, l.linked
	l.mu.Unlock()
	if !linked {
		return errNotLinked
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if len(data) <= MTU {
		_, err := crtp.WriteWithoutResponse(data)
		return err
	}

	pid := uint8(l.pid.Inc())
	for _, f := range fragment(data, pid) {
		if _, err := up.WriteWithoutResponse(f); err != nil {
			return err
		}
	}
	return nil
}

func (l *Link) notification(buf []byte) {
	l.mu.Lock()
	packet, done := l.down.push(buf)
	handler := l.onPacket
	l.mu.Unlock()

	if done && handler != nil {
		handler(packet)
	}
}

func (l *Link) report(state string) {
	l.mu.Lock()
	handler := l.onState
	l.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}
