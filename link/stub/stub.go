// Package stub is an in-memory Crazyflie used for host-side testing and demos.
package stub

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"github.com/mikehamer/crazyclient/crtp"
	"github.com/mikehamer/crazyclient/link"
	"github.com/mikehamer/crazyclient/toc"
)

// BLEStates is the state sequence a Bluetooth link reports while connecting.
var BLEStates = []string{"scanning", "connecting", "services", "characteristics", "connected"}

type Config struct {
	// States are reported in order before a successful connect callback.
	States []string
	// FailWith makes Connect fail after the first state with this LastError.
	FailWith string
	// Silent devices never answer TOC queries.
	Silent bool
	// Sync delivers the connect sequence on the caller's goroutine.
	Sync bool

	Params []toc.Entry
	Logs   []toc.Entry
	// Values seeds parameter values by full name, zero otherwise.
	Values map[string]float64
	// ParamV2 makes value requests carry 16-bit ids.
	ParamV2 bool
}

// Link implements link.Link. All exported methods are safe for concurrent use.
type Link struct {
	cfg Config

	mu        sync.Mutex
	connected bool
	lastError string
	onState   func(string)
	onPacket  func([]byte)
	sent      [][]byte
	params    link.Params
	values    map[uint16][]byte
}

var _ link.Link = (*Link)(nil)

func New(cfg Config) *Link {
	if cfg.States == nil {
		cfg.States = BLEStates
	}
	l := &Link{cfg: cfg, values: make(map[uint16][]byte)}
	for _, e := range cfg.Params {
		b, err := toc.Encode(e.Type, cfg.Values[e.FullName()])
		if err != nil {
			b = make([]byte, e.Type.Size())
		}
		l.values[e.ID] = b
	}
	return l
}

// Crazyflie is a stub preloaded with a small but realistic set of tables.
func Crazyflie() *Link {
	return New(CrazyflieConfig())
}

// CrazyflieConfig is the configuration behind Crazyflie.
func CrazyflieConfig() Config {
	return Config{
		Params: []toc.Entry{
			{ID: 0, Group: "firmware", Name: "revision0", Type: toc.Uint32, ReadOnly: true},
			{ID: 1, Group: "pid_rate", Name: "roll_kp", Type: toc.Float32},
			{ID: 2, Group: "pid_rate", Name: "pitch_kp", Type: toc.Float32},
			{ID: 3, Group: "flightmode", Name: "althold", Type: toc.Uint8},
		},
		Logs: []toc.Entry{
			{ID: 0, Group: "stabilizer", Name: "roll", Type: toc.Float32},
			{ID: 1, Group: "stabilizer", Name: "pitch", Type: toc.Float32},
			{ID: 2, Group: "stabilizer", Name: "yaw", Type: toc.Float32},
			{ID: 3, Group: "pm", Name: "vbat", Type: toc.FP16},
		},
		Values: map[string]float64{
			"firmware.revision0": 0xBEEF,
			"pid_rate.roll_kp":   250,
			"pid_rate.pitch_kp":  250,
		},
	}
}

func (l *Link) Connect(params link.Params, callback func(connected bool)) {
	l.mu.Lock()
	l.params = params
	l.lastError = ""
	l.mu.Unlock()

	run := func() {
		if l.cfg.FailWith != "" {
			if len(l.cfg.States) > 0 {
				l.report(l.cfg.States[0])
			}
			l.mu.Lock()
			l.lastError = l.cfg.FailWith
			l.mu.Unlock()
			l.report("idle")
			if callback != nil {
				callback(false)
			}
			return
		}

		// like the real links, ready to answer before "connected" goes out
		last := len(l.cfg.States) - 1
		for i, s := range l.cfg.States {
			if i == last {
				l.setConnected()
			}
			l.report(s)
		}
		if last < 0 {
			l.setConnected()
		}
		if callback != nil {
			callback(true)
		}
	}

	if l.cfg.Sync {
		run()
		return
	}
	go run()
}

func (l *Link) setConnected() {
	l.mu.Lock()
	l.connected = true
	l.mu.Unlock()
}

func (l *Link) Disconnect() {
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
	l.report("idle")
}

func (l *Link) SendPacket(data []byte, callback func(err error)) {
	frame := make([]byte, len(data))
	copy(frame, data)

	l.mu.Lock()
	l.sent = append(l.sent, frame)
	connected := l.connected
	l.mu.Unlock()

	if callback != nil {
		callback(nil)
	}
	if connected && !l.cfg.Silent {
		for _, resp := range l.answer(frame) {
			l.Inject(resp)
		}
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

// Report pushes a state name as if the transport produced it.
func (l *Link) Report(state string) {
	l.report(state)
}

// Inject delivers an inbound frame to the packet handler.
func (l *Link) Inject(data []byte) {
	l.mu.Lock()
	handler := l.onPacket
	l.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}

// Sent returns a copy of every frame sent so far.
func (l *Link) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.sent))
	copy(out, l.sent)
	return out
}

// Commands returns the commander frames sent so far.
func (l *Link) Commands() []crtp.CommanderPacket {
	var out []crtp.CommanderPacket
	for _, frame := range l.Sent() {
		port, _, err := crtp.DecodeHeader(frame)
		if err != nil || port != crtp.PortCommander {
			continue
		}
		if p, err := crtp.DecodeCommander(frame); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Link) report(state string) {
	l.mu.Lock()
	handler := l.onState
	l.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

// ---- simulated firmware ----

var paramTypeTag = map[toc.VariableType]byte{
	toc.Uint8:   0x08,
	toc.Uint16:  0x09,
	toc.Uint32:  0x0A,
	toc.Int8:    0x00,
	toc.Int16:   0x01,
	toc.Int32:   0x02,
	toc.FP16:    0x05,
	toc.Float32: 0x06,
}

// Value returns the raw bytes currently held for a parameter id.
func (l *Link) Value(id uint16) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.values[id]...)
}

func (l *Link) answer(frame []byte) [][]byte {
	port, channel, err := crtp.DecodeHeader(frame)
	if err != nil || len(frame) < 2 {
		return nil
	}
	if port == crtp.PortParam && (channel == 1 || channel == 2) {
		return l.answerValue(channel, frame)
	}
	if channel != 0 {
		return nil
	}

	var entries []toc.Entry
	switch port {
	case crtp.PortParam:
		entries = l.cfg.Params
	case crtp.PortLog:
		entries = l.cfg.Logs
	default:
		return nil
	}

	header := crtp.HeaderByte(port, 0)
	switch frame[1] {
	case 0x01:
		resp := []byte{header, 0x01, byte(len(entries)), 0, 0, 0, 0, 32, 16}
		binary.LittleEndian.PutUint32(resp[3:7], checksum(entries))
		return [][]byte{resp}
	case 0x03:
		resp := []byte{header, 0x03, 0, 0, 0, 0, 0, 0, 32, 16}
		binary.LittleEndian.PutUint16(resp[2:4], uint16(len(entries)))
		binary.LittleEndian.PutUint32(resp[4:8], checksum(entries))
		return [][]byte{resp}
	case 0x00, 0x02:
		var id int
		var resp []byte
		if frame[1] == 0x00 && len(frame) >= 3 {
			id = int(frame[2])
			resp = []byte{header, 0x00, byte(id)}
		} else if frame[1] == 0x02 && len(frame) >= 4 {
			id = int(binary.LittleEndian.Uint16(frame[2:4]))
			resp = []byte{header, 0x02, frame[2], frame[3]}
		} else {
			return nil
		}
		if id >= len(entries) {
			return nil
		}
		e := entries[id]
		tag := byte(e.Type)
		if port == crtp.PortParam {
			tag = paramTypeTag[e.Type]
			if e.ReadOnly {
				tag |= 1 << 6
			}
		}
		resp = append(resp, tag)
		resp = append(resp, e.Group...)
		resp = append(resp, 0)
		resp = append(resp, e.Name...)
		resp = append(resp, 0)
		return [][]byte{resp}
	}
	return nil
}

func (l *Link) answerValue(channel crtp.Channel, frame []byte) [][]byte {
	idWidth := 1
	if l.cfg.ParamV2 {
		idWidth = 2
	}
	if len(frame) < 1+idWidth {
		return nil
	}

	var id uint16
	if l.cfg.ParamV2 {
		id = binary.LittleEndian.Uint16(frame[1:3])
	} else {
		id = uint16(frame[1])
	}
	if int(id) >= len(l.cfg.Params) {
		return nil
	}
	entry := l.cfg.Params[id]

	resp := append([]byte(nil), frame[:1+idWidth]...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if channel == 1 {
		if l.cfg.ParamV2 {
			resp = append(resp, 0) // status
		}
		return [][]byte{append(resp, l.values[id]...)}
	}

	value := frame[1+idWidth:]
	if entry.ReadOnly || len(value) != entry.Type.Size() {
		return nil
	}
	l.values[id] = append([]byte(nil), value...)
	return [][]byte{append(resp, value...)}
}

func checksum(entries []toc.Entry) uint32 {
	h := fnv.New32a()
	for _, e := range entries {
		h.Write([]byte(e.FullName()))
		h.Write([]byte{byte(e.Type)})
	}
	return h.Sum32()
}
