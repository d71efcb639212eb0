package toc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	expected := map[byte]struct {
		name string
		size int
	}{
		0x01: {"uint8", 1},
		0x02: {"uint16", 2},
		0x03: {"uint32", 4},
		0x04: {"int8", 1},
		0x05: {"int16", 2},
		0x06: {"int32", 4},
		0x07: {"float", 4},
		0x08: {"fp16", 2},
	}

	for tag, want := range expected {
		vt, err := Lookup(tag)
		require.NoError(t, err)
		assert.Equal(t, want.name, vt.String())
		assert.Equal(t, want.size, vt.Size())
	}

	for _, tag := range []byte{0x00, 0x09, 0x10, 0xFF} {
		_, err := Lookup(tag)
		assert.ErrorIs(t, err, ErrorUnknownType)
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		vt   VariableType
		in   []byte
		want interface{}
	}{
		{Uint8, []byte{0xFE}, uint8(254)},
		{Uint16, []byte{0x34, 0x12}, uint16(0x1234)},
		{Uint32, []byte{0x78, 0x56, 0x34, 0x12}, uint32(0x12345678)},
		{Int8, []byte{0xFF}, int8(-1)},
		{Int16, []byte{0xFE, 0xFF}, int16(-2)},
		{Int32, []byte{0xFD, 0xFF, 0xFF, 0xFF}, int32(-3)},
		{Float32, []byte{0x00, 0x00, 0xC0, 0x3F}, float32(1.5)},
		{FP16, []byte{0x00, 0x3C}, float32(1.0)},
		{FP16, []byte{0x00, 0xC0}, float32(-2.0)},
		{FP16, []byte{0x01, 0x00}, float32(math.Pow(2, -24))},
		{Uint8, []byte{0x07, 0xAA, 0xBB}, uint8(7)},
	}

	for _, c := range cases {
		v, err := Decode(c.vt, c.in)
		require.NoError(t, err, c.vt.String())
		assert.Equal(t, c.want, v, c.vt.String())
	}
}

func TestDecodeFP16Specials(t *testing.T) {
	v, err := Decode(FP16, []byte{0x00, 0x7C})
	require.NoError(t, err)
	assert.True(t, math.IsInf(float64(v.(float32)), 1))

	v, err = Decode(FP16, []byte{0x01, 0x7C})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(v.(float32))))
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode(Uint32, []byte{0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, ErrorTruncatedPayload)

	_, err = Decode(FP16, nil)
	assert.ErrorIs(t, err, ErrorTruncatedPayload)

	_, err = Decode(VariableType(0x42), []byte{0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrorUnknownType)
}

func TestLookupParam(t *testing.T) {
	vt, ro, err := LookupParam(0x48)
	require.NoError(t, err)
	assert.Equal(t, Uint8, vt)
	assert.True(t, ro)

	vt, ro, err = LookupParam(0x06)
	require.NoError(t, err)
	assert.Equal(t, Float32, vt)
	assert.False(t, ro)

	_, _, err = LookupParam(0x0F)
	assert.ErrorIs(t, err, ErrorUnknownType)
}

func TestEncode(t *testing.T) {
	cases := []struct {
		vt   VariableType
		in   float64
		want []byte
	}{
		{Uint8, 254, []byte{0xFE}},
		{Uint8, 300, []byte{0xFF}},
		{Uint8, -4, []byte{0x00}},
		{Uint16, 0x1234, []byte{0x34, 0x12}},
		{Uint32, 0x12345678, []byte{0x78, 0x56, 0x34, 0x12}},
		{Int8, -1.9, []byte{0xFF}},
		{Int8, -1000, []byte{0x80}},
		{Int16, -2, []byte{0xFE, 0xFF}},
		{Int32, -3, []byte{0xFD, 0xFF, 0xFF, 0xFF}},
		{Float32, 1.5, []byte{0x00, 0x00, 0xC0, 0x3F}},
		{FP16, 1, []byte{0x00, 0x3C}},
		{FP16, -2, []byte{0x00, 0xC0}},
		{FP16, math.Pow(2, -24), []byte{0x01, 0x00}},
		{FP16, 1e6, []byte{0x00, 0x7C}},
	}

	for _, c := range cases {
		b, err := Encode(c.vt, c.in)
		require.NoError(t, err, c.vt.String())
		assert.Equal(t, c.want, b, "%s %v", c.vt, c.in)
	}
}

func TestEncodeDecodeFloat(t *testing.T) {
	for _, v := range []float64{0.25, -3.5, 1024} {
		b, err := Encode(FP16, v)
		require.NoError(t, err)
		back, err := Decode(FP16, b)
		require.NoError(t, err)
		assert.Equal(t, float32(v), back)
	}
}

func TestEncodeRejects(t *testing.T) {
	_, err := Encode(Int16, math.NaN())
	assert.ErrorIs(t, err, ErrorValueOutOfRange)

	_, err = Encode(VariableType(0x42), 1)
	assert.ErrorIs(t, err, ErrorUnknownType)
}
