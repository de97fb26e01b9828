package plist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/wire/cdr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := &List{}
	l.Add(PIDTopicName, []byte("square"))
	l.Add(PIDTypeName, []byte("ShapeType"))

	w := cdr.NewWriter(cdr.LittleEndian, 0)
	Encode(w, l)

	r := cdr.NewReader(w.Bytes(), cdr.LittleEndian, 0)
	got, err := Decode(r)
	require.NoError(t, err)
	require.Len(t, got.Params, 2)

	p, ok := got.Get(PIDTopicName)
	require.True(t, ok)
	assert.Equal(t, []byte("square"), p.Value)

	p, ok = got.Get(PIDTypeName)
	require.True(t, ok)
	assert.Equal(t, []byte("ShapeType"), p.Value)
}

func TestDecodeStopsAtSentinel(t *testing.T) {
	l := &List{}
	l.Add(PIDTopicName, []byte("square"))
	w := cdr.NewWriter(cdr.LittleEndian, 0)
	Encode(w, l)
	// trailing garbage after the sentinel must be ignored
	raw := append(w.Bytes(), 0xff, 0xff, 0xff, 0xff)

	r := cdr.NewReader(raw, cdr.LittleEndian, 0)
	got, err := Decode(r)
	require.NoError(t, err)
	require.Len(t, got.Params, 1)
}

func TestUnknownPIDPreservedVerbatim(t *testing.T) {
	l := &List{}
	const unknownPID PID = 0x7f01
	l.Add(unknownPID, []byte{1, 2, 3})

	w := cdr.NewWriter(cdr.LittleEndian, 0)
	Encode(w, l)
	r := cdr.NewReader(w.Bytes(), cdr.LittleEndian, 0)
	got, err := Decode(r)
	require.NoError(t, err)

	p, ok := got.Get(unknownPID)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, p.Value)
}

func TestDecodeTruncatedTailReturnsPartial(t *testing.T) {
	l := &List{}
	l.Add(PIDTopicName, []byte("square"))
	w := cdr.NewWriter(cdr.LittleEndian, 0)
	Encode(w, l)
	raw := w.Bytes()
	// cut off mid-sentinel: the first parameter must still be readable
	truncated := raw[:len(raw)-3]

	r := cdr.NewReader(truncated, cdr.LittleEndian, 0)
	got, err := Decode(r)
	require.NoError(t, err)
	require.Len(t, got.Params, 1)
}

func TestDecodeOverrunLengthErrors(t *testing.T) {
	w := cdr.NewWriter(cdr.LittleEndian, 0)
	w.PutUint16(uint16(PIDTopicName))
	w.PutUint16(9000) // declares far more bytes than are present
	w.PutUint8(1)

	r := cdr.NewReader(w.Bytes(), cdr.LittleEndian, 0)
	_, err := Decode(r)
	assert.Error(t, err)
}

func TestWriterQoSRoundTrip(t *testing.T) {
	in := qos.DefaultWriterQoS()
	in.Durability = qos.TransientLocal
	in.Reliability.Kind = qos.Reliable
	in.Reliability.MaxBlockingTime = 250 * time.Millisecond
	in.Reliability.DisablePositiveACKs = true
	in.History = qos.History{Kind: qos.KeepLast, Depth: 8}
	in.Partition = qos.Partition{Names: []string{"a", "b*"}}
	in.OwnershipStrength = 42

	l := &List{}
	EncodeWriterQoS(l, in)

	w := cdr.NewWriter(cdr.LittleEndian, 0)
	Encode(w, l)
	r := cdr.NewReader(w.Bytes(), cdr.LittleEndian, 0)
	decoded, err := Decode(r)
	require.NoError(t, err)

	out := DecodeWriterQoS(decoded)
	assert.Equal(t, in.Durability, out.Durability)
	assert.Equal(t, in.Reliability.Kind, out.Reliability.Kind)
	assert.Equal(t, in.Reliability.MaxBlockingTime, out.Reliability.MaxBlockingTime)
	assert.True(t, out.Reliability.DisablePositiveACKs)
	assert.Equal(t, in.History, out.History)
	assert.Equal(t, in.Partition, out.Partition)
	assert.Equal(t, in.OwnershipStrength, out.OwnershipStrength)
}

func TestReaderQoSRoundTrip(t *testing.T) {
	in := qos.DefaultReaderQoS()
	in.Liveliness.Kind = qos.ManualByTopic
	in.Liveliness.LeaseDuration = 3 * time.Second
	in.ResourceLimits = qos.ResourceLimits{MaxSamples: 100, MaxInstances: 10, MaxSamplesPerInstance: 10}

	l := &List{}
	EncodeReaderQoS(l, in)

	w := cdr.NewWriter(cdr.LittleEndian, 0)
	Encode(w, l)
	r := cdr.NewReader(w.Bytes(), cdr.LittleEndian, 0)
	decoded, err := Decode(r)
	require.NoError(t, err)

	out := DecodeReaderQoS(decoded)
	assert.Equal(t, in.Liveliness, out.Liveliness)
	assert.Equal(t, in.ResourceLimits, out.ResourceLimits)
}

func TestWriterQoSDefaultsWhenPIDsAbsent(t *testing.T) {
	l := &List{}
	out := DecodeWriterQoS(l)
	assert.Equal(t, qos.DefaultWriterQoS(), out)
}
