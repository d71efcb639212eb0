package crazyflie

import (
	"encoding/binary"

	"github.com/mikehamer/crazyclient/crtp"
)

const (
	paramReadChannel  crtp.Channel = 1
	paramWriteChannel crtp.Channel = 2
)

// ---- PARAM REQUEST: READ VALUE ----
type paramRequestRead struct {
	ID uint16
	V2 bool
}

func (p *paramRequestRead) Port() crtp.Port {
	return crtp.PortParam
}

func (p *paramRequestRead) Channel() crtp.Channel {
	return paramReadChannel
}

func (p *paramRequestRead) Bytes() []byte {
	return paramID(p.ID, p.V2)
}

// ---- PARAM REQUEST: WRITE VALUE ----
type paramRequestWrite struct {
	ID   uint16
	V2   bool
	Data []byte
}

func (p *paramRequestWrite) Port() crtp.Port {
	return crtp.PortParam
}

func (p *paramRequestWrite) Channel() crtp.Channel {
	return paramWriteChannel
}

func (p *paramRequestWrite) Bytes() []byte {
	return append(paramID(p.ID, p.V2), p.Data...)
}

// ---- PARAM RESPONSE: READ OR WRITE VALUE ----
type paramResponse struct {
	Channel crtp.Channel
	ID      uint16
	Data    []byte
}

// LoadFromBytes parses a full frame, b[0] being the CRTP header. Newer
// firmware answers reads with a status byte between the id and the value.
func (p *paramResponse) LoadFromBytes(b []byte, v2 bool) error {
	_, channel, err := crtp.DecodeHeader(b)
	if err != nil {
		return err
	}
	if channel != paramReadChannel && channel != paramWriteChannel {
		return crtp.ErrorPacketIncorrectType
	}
	p.Channel = channel

	if !v2 {
		if len(b) < 2 {
			return crtp.ErrorMalformedFrame
		}
		p.ID = uint16(b[1])
		p.Data = b[2:]
		return nil
	}

	offset := 3
	if channel == paramReadChannel {
		offset = 4
	}
	if len(b) < offset {
		return crtp.ErrorMalformedFrame
	}
	p.ID = binary.LittleEndian.Uint16(b[1:3])
	p.Data = b[offset:]
	return nil
}

func paramID(id uint16, v2 bool) []byte {
	if v2 {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, id)
		return b
	}
	return []byte{byte(id)}
}
