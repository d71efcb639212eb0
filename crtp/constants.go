package crtp

import "fmt"

// Port tags are full header bytes with the port in the high nibble. Platform
// keeps the value the Crazyflie firmware documents for BLE clients.
const (
	PortConsole   Port = 0x00
	PortParam     Port = 0x20
	PortCommander Port = 0x30
	PortMem       Port = 0x40
	PortLog       Port = 0x50
	PortPlatform  Port = 0x13
	PortLink      Port = 0xF0
)

type Header byte
type Port byte
type Channel byte

var portNames = map[Port]string{
	PortConsole:   "console",
	PortParam:     "param",
	PortCommander: "commander",
	PortMem:       "memory",
	PortLog:       "log",
	PortPlatform:  "platform",
	PortLink:      "link",
}

func (p Port) String() string {
	if name, ok := portNames[p]; ok {
		return name
	}
	return fmt.Sprintf("port(0x%02X)", byte(p))
}

// HeaderByte builds the first byte of an outgoing frame.
func HeaderByte(port Port, channel Channel) byte {
	return byte(port) | (byte(channel) & 0x03)
}

func (header Header) Channel() Channel {
	return Channel(byte(header) & 0x03)
}

func (header Header) Port() Port {
	if Port(header) == PortPlatform {
		return PortPlatform
	}
	return Port(byte(header) & 0xF0)
}

// DecodeHeader extracts the routing fields of an inbound frame. Link bits (2-3)
// are ignored.
func DecodeHeader(b []byte) (Port, Channel, error) {
	if len(b) == 0 {
		return 0, 0, ErrorMalformedFrame
	}
	header := Header(b[0])
	if header.Port() == PortPlatform {
		return PortPlatform, 0, nil
	}
	return header.Port(), header.Channel(), nil
}
