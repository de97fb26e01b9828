package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtps-go/rtps/core/guid"
)

func TestReassemblyCompletesOnLastFragment(t *testing.T) {
	ps := NewPitStop(10)
	g := guid.GUID{}
	key := Key{WriterGUID: g, SequenceNumber: 1}

	ps.Start(key, g, 10, 4, 3)
	_, done := ps.ApplyFragment(key, 1, []byte{1, 2, 3, 4})
	assert.False(t, done)
	_, done = ps.ApplyFragment(key, 2, []byte{5, 6, 7, 8})
	assert.False(t, done)

	change, done := ps.ApplyFragment(key, 3, []byte{9, 10})
	require.True(t, done)
	require.NotNil(t, change)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, change.Payload)
	assert.Equal(t, 0, ps.Len())
}

func TestReassemblyOutOfOrderFragments(t *testing.T) {
	ps := NewPitStop(10)
	g := guid.GUID{}
	key := Key{WriterGUID: g, SequenceNumber: 1}

	ps.Start(key, g, 6, 2, 3)
	_, done := ps.ApplyFragment(key, 3, []byte{5, 6})
	assert.False(t, done)
	_, done = ps.ApplyFragment(key, 1, []byte{1, 2})
	assert.False(t, done)
	change, done := ps.ApplyFragment(key, 2, []byte{3, 4})
	require.True(t, done)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, change.Payload)
}

func TestStartIsIdempotentForSameKey(t *testing.T) {
	ps := NewPitStop(10)
	g := guid.GUID{}
	key := Key{WriterGUID: g, SequenceNumber: 1}

	ps.Start(key, g, 4, 2, 2)
	ps.ApplyFragment(key, 1, []byte{9, 9})
	ps.Start(key, g, 4, 2, 2) // must not reset progress
	_, done := ps.ApplyFragment(key, 2, []byte{1, 1})
	require.True(t, done)
}

func TestDropRemovesInProgressReassembly(t *testing.T) {
	ps := NewPitStop(10)
	g := guid.GUID{}
	key := Key{WriterGUID: g, SequenceNumber: 1}
	ps.Start(key, g, 4, 2, 2)
	assert.Equal(t, 1, ps.Len())
	ps.Drop(key)
	assert.Equal(t, 0, ps.Len())
	_, done := ps.ApplyFragment(key, 1, []byte{1, 2})
	assert.False(t, done)
}

func TestDropWriterRemovesAllOfThatWriter(t *testing.T) {
	ps := NewPitStop(10)
	g1 := guid.GUID{Prefix: guid.Prefix{0x01}}
	g2 := guid.GUID{Prefix: guid.Prefix{0x02}}
	k1 := Key{WriterGUID: g1, SequenceNumber: 1}
	k2 := Key{WriterGUID: g1, SequenceNumber: 2}
	k3 := Key{WriterGUID: g2, SequenceNumber: 1}

	ps.Start(k1, g1, 2, 2, 1)
	ps.Start(k2, g1, 2, 2, 1)
	ps.Start(k3, g2, 2, 2, 1)
	assert.Equal(t, 3, ps.Len())

	ps.DropWriter(g1)
	assert.Equal(t, 1, ps.Len())
}

func TestLRUEvictsLeastRecentlyTouchedAtCapacity(t *testing.T) {
	ps := NewPitStop(2)
	g := guid.GUID{}
	k1 := Key{WriterGUID: g, SequenceNumber: 1}
	k2 := Key{WriterGUID: g, SequenceNumber: 2}
	k3 := Key{WriterGUID: g, SequenceNumber: 3}

	ps.Start(k1, g, 4, 2, 2)
	ps.Start(k2, g, 4, 2, 2)
	// touch k1 (still incomplete) so k2 becomes the least-recently-touched
	ps.ApplyFragment(k1, 1, []byte{0, 0})

	ps.Start(k3, g, 4, 2, 2)
	assert.Equal(t, 2, ps.Len())

	_, done := ps.ApplyFragment(k2, 1, []byte{1, 1})
	assert.False(t, done, "k2 should have been evicted")

	_, done = ps.ApplyFragment(k1, 2, []byte{1, 1})
	assert.True(t, done, "k1 survived eviction and completes normally")
}

func TestApplyFragmentUnknownKeyIsNoop(t *testing.T) {
	ps := NewPitStop(10)
	key := Key{WriterGUID: guid.GUID{}, SequenceNumber: 99}
	change, done := ps.ApplyFragment(key, 1, []byte{1})
	assert.False(t, done)
	assert.Nil(t, change)
}
