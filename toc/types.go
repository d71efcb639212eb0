package toc

import (
	"encoding/binary"
	"math"
)

// VariableType is the wire type tag of a log or parameter variable.
type VariableType uint8

const (
	Uint8   VariableType = 0x01
	Uint16  VariableType = 0x02
	Uint32  VariableType = 0x03
	Int8    VariableType = 0x04
	Int16   VariableType = 0x05
	Int32   VariableType = 0x06
	Float32 VariableType = 0x07
	FP16    VariableType = 0x08
)

type typeInfo struct {
	name   string
	size   int
	decode func([]byte) interface{}
	encode func([]byte, float64)
}

// everything is little endian
var typeTable = map[VariableType]typeInfo{
	Uint8:   {"uint8", 1, bytesToUint8, uint8ToBytes},
	Uint16:  {"uint16", 2, bytesToUint16, uint16ToBytes},
	Uint32:  {"uint32", 4, bytesToUint32, uint32ToBytes},
	Int8:    {"int8", 1, bytesToInt8, int8ToBytes},
	Int16:   {"int16", 2, bytesToInt16, int16ToBytes},
	Int32:   {"int32", 4, bytesToInt32, int32ToBytes},
	Float32: {"float", 4, bytesToFloat32, float32ToBytes},
	FP16:    {"fp16", 2, bytesToFloat16, float16ToBytes},
}

// The parameter port packs its type as (size | float<<2 | unsigned<<3).
var paramTypeToVariable = map[uint8]VariableType{
	0x08: Uint8,
	0x09: Uint16,
	0x0A: Uint32,
	0x00: Int8,
	0x01: Int16,
	0x02: Int32,
	0x05: FP16,
	0x06: Float32,
}

const (
	paramFlagReadOnly = 1 << 6
	paramTypeMask     = 0x0F
)

// Lookup resolves a log TOC type tag.
func Lookup(tag byte) (VariableType, error) {
	t := VariableType(tag)
	if _, ok := typeTable[t]; !ok {
		return 0, ErrorUnknownType
	}
	return t, nil
}

// LookupParam resolves the type byte of a parameter TOC entry.
func LookupParam(tag byte) (VariableType, bool, error) {
	t, ok := paramTypeToVariable[tag&paramTypeMask]
	if !ok {
		return 0, false, ErrorUnknownType
	}
	return t, tag&paramFlagReadOnly != 0, nil
}

func (t VariableType) String() string {
	if info, ok := typeTable[t]; ok {
		return info.name
	}
	return "unknown"
}

// Size is the wire width in bytes, 0 for an unknown type.
func (t VariableType) Size() int {
	return typeTable[t].size
}

// Decode reads one value of type t from the front of b.
func Decode(t VariableType, b []byte) (interface{}, error) {
	info, ok := typeTable[t]
	if !ok {
		return nil, ErrorUnknownType
	}
	if len(b) < info.size {
		return nil, ErrorTruncatedPayload
	}
	return info.decode(b[:info.size]), nil
}

// Encode converts v to type t, saturating integers at the type's range.
func Encode(t VariableType, v float64) ([]byte, error) {
	info, ok := typeTable[t]
	if !ok {
		return nil, ErrorUnknownType
	}
	if math.IsNaN(v) && !t.IsFloat() {
		return nil, ErrorValueOutOfRange
	}
	b := make([]byte, info.size)
	info.encode(b, v)
	return b, nil
}

// IsFloat reports whether t carries a floating point value.
func (t VariableType) IsFloat() bool {
	return t == Float32 || t == FP16
}

func bytesToUint8(b []byte) interface{} {
	return b[0]
}

func bytesToUint16(b []byte) interface{} {
	return binary.LittleEndian.Uint16(b)
}

func bytesToUint32(b []byte) interface{} {
	return binary.LittleEndian.Uint32(b)
}

func bytesToInt8(b []byte) interface{} {
	return int8(b[0])
}

func bytesToInt16(b []byte) interface{} {
	return int16(binary.LittleEndian.Uint16(b))
}

func bytesToInt32(b []byte) interface{} {
	return int32(binary.LittleEndian.Uint32(b))
}

func bytesToFloat32(b []byte) interface{} {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func bytesToFloat16(b []byte) interface{} {
	return halfToFloat32(binary.LittleEndian.Uint16(b))
}

// halfToFloat32 widens an IEEE 754 binary16 value. Every binary16 is exactly
// representable as a binary32.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h) & 0x03FF

	switch {
	case exp == 0x1F:
		if frac != 0 {
			return math.Float32frombits(sign | 0x7FC00000)
		}
		return math.Float32frombits(sign | 0x7F800000)
	case exp == 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// subnormal: normalise the mantissa
		e := int32(-14)
		for frac&0x0400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x03FF
		return math.Float32frombits(sign | uint32(e+127)<<23 | frac<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
	}
}

func saturate(v, min, max float64) float64 {
	v = math.Trunc(v)
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func uint8ToBytes(b []byte, v float64) {
	b[0] = uint8(saturate(v, 0, math.MaxUint8))
}

func uint16ToBytes(b []byte, v float64) {
	binary.LittleEndian.PutUint16(b, uint16(saturate(v, 0, math.MaxUint16)))
}

func uint32ToBytes(b []byte, v float64) {
	binary.LittleEndian.PutUint32(b, uint32(saturate(v, 0, math.MaxUint32)))
}

func int8ToBytes(b []byte, v float64) {
	b[0] = byte(int8(saturate(v, math.MinInt8, math.MaxInt8)))
}

func int16ToBytes(b []byte, v float64) {
	binary.LittleEndian.PutUint16(b, uint16(int16(saturate(v, math.MinInt16, math.MaxInt16))))
}

func int32ToBytes(b []byte, v float64) {
	binary.LittleEndian.PutUint32(b, uint32(int32(saturate(v, math.MinInt32, math.MaxInt32))))
}

func float32ToBytes(b []byte, v float64) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
}

func float16ToBytes(b []byte, v float64) {
	binary.LittleEndian.PutUint16(b, float32ToHalf(float32(v)))
}

// float32ToHalf narrows to binary16, truncating the mantissa. Values beyond
// the binary16 range become infinities, tiny values flush to zero.
func float32ToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23) & 0xFF
	frac := bits & 0x007FFFFF

	switch {
	case exp == 0xFF:
		if frac != 0 {
			return sign | 0x7E00
		}
		return sign | 0x7C00
	case exp-127+15 >= 0x1F:
		return sign | 0x7C00
	case exp-127+15 <= 0:
		shift := uint32(14 - (exp - 127 + 15))
		if shift > 24 {
			return sign
		}
		return sign | uint16((frac|0x00800000)>>(shift))
	default:
		return sign | uint16(exp-127+15)<<10 | uint16(frac>>13)
	}
}
