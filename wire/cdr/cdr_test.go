package cdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripPrimitives(t *testing.T) {
	w := NewWriter(LittleEndian, 0)
	w.PutUint8(0x7f)
	w.PutUint16(0xbeef)
	w.PutUint32(0xdeadbeef)
	w.PutUint64(0x0102030405060708)
	w.PutString("topic/name")

	r := NewReader(w.Bytes(), LittleEndian, 0)
	u8, err := r.GetUint8()
	require.NoError(t, err)
	assert.EqualValues(t, 0x7f, u8)

	u16, err := r.GetUint16()
	require.NoError(t, err)
	assert.EqualValues(t, 0xbeef, u16)

	u32, err := r.GetUint32()
	require.NoError(t, err)
	assert.EqualValues(t, 0xdeadbeef, u32)

	u64, err := r.GetUint64()
	require.NoError(t, err)
	assert.EqualValues(t, 0x0102030405060708, u64)

	s, err := r.GetString()
	require.NoError(t, err)
	assert.Equal(t, "topic/name", s)
}

func TestAlignment(t *testing.T) {
	w := NewWriter(BigEndian, 0)
	w.PutUint8(1)
	w.PutUint32(42) // must be padded to a 4-byte boundary
	assert.Equal(t, 8, w.Len())
}

func TestShortReadError(t *testing.T) {
	r := NewReader([]byte{1, 2}, BigEndian, 0)
	_, err := r.GetUint32()
	assert.Error(t, err)
}

func TestEndiannessDiffers(t *testing.T) {
	wb := NewWriter(BigEndian, 0)
	wb.PutUint32(0x01020304)
	wl := NewWriter(LittleEndian, 0)
	wl.PutUint32(0x01020304)
	assert.NotEqual(t, wb.Bytes(), wl.Bytes())
}
