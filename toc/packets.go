package toc

import (
	"encoding/binary"
	"strings"

	"github.com/mikehamer/crazyclient/crtp"
)

const (
	tocChannel crtp.Channel = 0

	cmdTocElement byte = 0x00
	cmdTocInfo    byte = 0x01
	cmdTocItemV2  byte = 0x02
	cmdTocInfoV2  byte = 0x03
)

// ---- TOC REQUEST: GET INFO ----
type RequestGetInfo struct {
	Table crtp.Port
	V2    bool
}

func (p *RequestGetInfo) Port() crtp.Port {
	return p.Table
}

func (p *RequestGetInfo) Channel() crtp.Channel {
	return tocChannel
}

func (p *RequestGetInfo) Bytes() []byte {
	if p.V2 {
		return []byte{cmdTocInfoV2}
	}
	return []byte{cmdTocInfo}
}

// ---- TOC RESPONSE: GET INFO ----
type ResponseGetInfo struct {
	Count int
	CRC   uint32
}

// LoadFromBytes parses a full frame, b[0] being the CRTP header.
func (p *ResponseGetInfo) LoadFromBytes(b []byte) error {
	if len(b) < 2 {
		return ErrorTruncatedPayload
	}
	switch b[1] {
	case cmdTocInfo:
		if len(b) < 7 {
			return ErrorTruncatedPayload
		}
		p.Count = int(b[2])
		p.CRC = binary.LittleEndian.Uint32(b[3 : 3+4])
	case cmdTocInfoV2:
		if len(b) < 8 {
			return ErrorTruncatedPayload
		}
		p.Count = int(binary.LittleEndian.Uint16(b[2:4]))
		p.CRC = binary.LittleEndian.Uint32(b[4 : 4+4])
	default:
		return crtp.ErrorPacketIncorrectType
	}
	return nil
}

// ---- TOC REQUEST: GET ITEM ----
type RequestGetItem struct {
	Table crtp.Port
	ID    uint16
	V2    bool
}

func (p *RequestGetItem) Port() crtp.Port {
	return p.Table
}

func (p *RequestGetItem) Channel() crtp.Channel {
	return tocChannel
}

func (p *RequestGetItem) Bytes() []byte {
	if p.V2 {
		return []byte{cmdTocItemV2, byte(p.ID), byte(p.ID >> 8)}
	}
	return []byte{cmdTocElement, byte(p.ID)}
}

// ---- TOC RESPONSE: GET ITEM ----
type ResponseGetItem struct {
	Table crtp.Port
	Entry Entry
}

// LoadFromBytes parses a full frame, b[0] being the CRTP header.
func (p *ResponseGetItem) LoadFromBytes(b []byte) error {
	if len(b) < 2 {
		return ErrorTruncatedPayload
	}

	var id uint16
	var rest []byte
	switch b[1] {
	case cmdTocElement:
		if len(b) < 4 {
			return ErrorTruncatedPayload
		}
		id = uint16(b[2])
		rest = b[3:]
	case cmdTocItemV2:
		if len(b) < 5 {
			return ErrorTruncatedPayload
		}
		id = binary.LittleEndian.Uint16(b[2:4])
		rest = b[4:]
	default:
		return crtp.ErrorPacketIncorrectType
	}

	entry := Entry{ID: id}
	var err error
	if p.Table == crtp.PortParam {
		entry.Type, entry.ReadOnly, err = LookupParam(rest[0])
	} else {
		entry.Type, err = Lookup(rest[0] & paramTypeMask)
	}
	if err != nil {
		return err
	}

	// group and name are both null terminated
	str := strings.Split(string(rest[1:]), "\x00")
	if len(str) < 2 {
		return ErrorTruncatedPayload
	}
	entry.Group = str[0]
	entry.Name = str[1]

	p.Entry = entry
	return nil
}

func isInfo(cmd byte) bool {
	return cmd == cmdTocInfo || cmd == cmdTocInfoV2
}

func isItem(cmd byte) bool {
	return cmd == cmdTocElement || cmd == cmdTocItemV2
}
