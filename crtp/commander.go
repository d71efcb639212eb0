package crtp

import (
	"encoding/binary"
	"math"
)

// CommanderPacketSize is the on-air size of a commander frame, header included.
const CommanderPacketSize = 1 + 4 + 4 + 4 + 2

// CommanderPacket is one roll/pitch/yaw/thrust setpoint addressed to a port.
type CommanderPacket struct {
	Header byte
	Roll   float32
	Pitch  float32
	Yaw    float32
	Thrust uint16
}

func NewCommanderPacket(roll, pitch, yaw float32, thrust uint16) CommanderPacket {
	return CommanderPacket{
		Header: HeaderByte(PortCommander, 0),
		Roll:   roll,
		Pitch:  pitch,
		Yaw:    yaw,
		Thrust: thrust,
	}
}

func (p CommanderPacket) Port() Port {
	return Header(p.Header).Port()
}

func (p CommanderPacket) Channel() Channel {
	return Header(p.Header).Channel()
}

// Bytes returns the full frame: header followed by the little-endian fields.
func (p CommanderPacket) Bytes() []byte {
	packet := make([]byte, CommanderPacketSize)
	packet[0] = p.Header
	binary.LittleEndian.PutUint32(packet[1:5], math.Float32bits(p.Roll))
	binary.LittleEndian.PutUint32(packet[5:9], math.Float32bits(p.Pitch))
	binary.LittleEndian.PutUint32(packet[9:13], math.Float32bits(p.Yaw))
	binary.LittleEndian.PutUint16(packet[13:15], p.Thrust)
	return packet
}

// EncodeCommander frames a setpoint for the given port. Thrust must already be
// in range.
func EncodeCommander(port Port, roll, pitch, yaw float32, thrust uint16) []byte {
	return CommanderPacket{
		Header: byte(port),
		Roll:   roll,
		Pitch:  pitch,
		Yaw:    yaw,
		Thrust: thrust,
	}.Bytes()
}

func DecodeCommander(b []byte) (CommanderPacket, error) {
	if len(b) != CommanderPacketSize {
		return CommanderPacket{}, ErrorMalformedFrame
	}
	return CommanderPacket{
		Header: b[0],
		Roll:   math.Float32frombits(binary.LittleEndian.Uint32(b[1:5])),
		Pitch:  math.Float32frombits(binary.LittleEndian.Uint32(b[5:9])),
		Yaw:    math.Float32frombits(binary.LittleEndian.Uint32(b[9:13])),
		Thrust: binary.LittleEndian.Uint16(b[13:15]),
	}, nil
}
