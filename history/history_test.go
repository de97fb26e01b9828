package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/core/seqnum"
)

func testWriterGUID(entity byte) guid.GUID {
	return guid.GUID{
		Prefix:   guid.Prefix{0x01, 0x0f, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		EntityID: guid.EntityID{0x00, 0x00, entity, 0x02},
	}
}

func change(writer guid.GUID, seq seqnum.SequenceNumber, inst InstanceHandle, kind ChangeKind) *CacheChange {
	return &CacheChange{Kind: kind, WriterGUID: writer, SequenceNumber: seq, InstanceHandle: inst}
}

func TestTryAddRejectsDuplicateSequenceNumber(t *testing.T) {
	w := testWriterGUID(1)
	hc := New(qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{}, NewPool(DynamicReserve, 0))
	require.NoError(t, hc.TryAdd(change(w, 1, InstanceHandle{}, Alive)))
	err := hc.TryAdd(change(w, 1, InstanceHandle{}, Alive))
	assert.Error(t, err)
}

func TestKeepAllEnforcesMaxSamples(t *testing.T) {
	w := testWriterGUID(1)
	hc := New(qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{MaxSamples: 2}, NewPool(DynamicReserve, 0))
	require.NoError(t, hc.TryAdd(change(w, 1, InstanceHandle{}, Alive)))
	require.NoError(t, hc.TryAdd(change(w, 2, InstanceHandle{}, Alive)))
	err := hc.TryAdd(change(w, 3, InstanceHandle{}, Alive))
	assert.Error(t, err)
	assert.Equal(t, 2, hc.Len())
}

func TestKeepLastEvictsOldestPerInstance(t *testing.T) {
	w := testWriterGUID(1)
	hc := New(qos.History{Kind: qos.KeepLast, Depth: 3}, qos.ResourceLimits{}, NewPool(DynamicReserve, 0))
	var evicted []seqnum.SequenceNumber
	hc.OnRemove = func(_ guid.GUID, s seqnum.SequenceNumber) { evicted = append(evicted, s) }

	inst := InstanceHandle{0x01}
	for s := seqnum.SequenceNumber(1); s <= 10; s++ {
		require.NoError(t, hc.TryAdd(change(w, s, inst, Alive)))
	}

	assert.Equal(t, 3, hc.Len())
	assert.Equal(t, seqnum.SequenceNumber(8), hc.MinSeq(w))
	assert.Equal(t, seqnum.SequenceNumber(10), hc.MaxSeq(w))
	assert.Equal(t, []seqnum.SequenceNumber{1, 2, 3, 4, 5, 6, 7}, evicted)
}

func TestKeepLastIsPerInstance(t *testing.T) {
	w := testWriterGUID(1)
	hc := New(qos.History{Kind: qos.KeepLast, Depth: 1}, qos.ResourceLimits{}, NewPool(DynamicReserve, 0))
	instA := InstanceHandle{0x0a}
	instB := InstanceHandle{0x0b}
	require.NoError(t, hc.TryAdd(change(w, 1, instA, Alive)))
	require.NoError(t, hc.TryAdd(change(w, 2, instB, Alive)))
	require.NoError(t, hc.TryAdd(change(w, 3, instA, Alive)))

	assert.Equal(t, 2, hc.Len())
	_, ok := hc.Get(w, 1)
	assert.False(t, ok)
	_, ok = hc.Get(w, 2)
	assert.True(t, ok)
	_, ok = hc.Get(w, 3)
	assert.True(t, ok)
}

func TestIterFromReturnsIncreasingOrder(t *testing.T) {
	w := testWriterGUID(1)
	hc := New(qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{}, NewPool(DynamicReserve, 0))
	for _, s := range []seqnum.SequenceNumber{5, 1, 3, 2, 4} {
		require.NoError(t, hc.TryAdd(change(w, s, InstanceHandle{}, Alive)))
	}
	out := hc.IterFrom(w, 3)
	require.Len(t, out, 3)
	assert.Equal(t, seqnum.SequenceNumber(3), out[0].SequenceNumber)
	assert.Equal(t, seqnum.SequenceNumber(4), out[1].SequenceNumber)
	assert.Equal(t, seqnum.SequenceNumber(5), out[2].SequenceNumber)
}

func TestRemoveNotifiesOnRemove(t *testing.T) {
	w := testWriterGUID(1)
	hc := New(qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{}, NewPool(DynamicReserve, 0))
	require.NoError(t, hc.TryAdd(change(w, 1, InstanceHandle{}, Alive)))
	var got seqnum.SequenceNumber = seqnum.Unknown
	hc.OnRemove = func(_ guid.GUID, s seqnum.SequenceNumber) { got = s }
	assert.True(t, hc.Remove(w, 1))
	assert.Equal(t, seqnum.SequenceNumber(1), got)
	assert.Equal(t, 0, hc.Len())
}

func TestMinMaxSeqOnEmptyCache(t *testing.T) {
	w := testWriterGUID(1)
	hc := New(qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{}, NewPool(DynamicReserve, 0))
	assert.Equal(t, seqnum.Unknown, hc.MinSeq(w))
	assert.Equal(t, seqnum.Unknown, hc.MaxSeq(w))
}

func TestReserveReleaseCacheDelegatesToPool(t *testing.T) {
	hc := New(qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{}, NewPool(Preallocated, 64))
	buf, err := hc.ReserveCache(32)
	require.NoError(t, err)
	assert.Len(t, buf, 32)
	hc.ReleaseCache(buf)

	_, err = hc.ReserveCache(100)
	assert.Error(t, err)
}

// A reader's HistoryCache holds changes from several matched writers
// whose sequence spaces each start at 1 independently; the same
// sequence number from two different writers must not collide (spec.md
// §3 invariant I2: no two CacheChanges share a (writer_guid,
// sequence_number) identity).
func TestMultipleWritersWithColldingSequenceNumbersCoexist(t *testing.T) {
	w1 := testWriterGUID(1)
	w2 := testWriterGUID(2)
	hc := New(qos.History{Kind: qos.KeepAll}, qos.ResourceLimits{}, NewPool(DynamicReserve, 0))

	require.NoError(t, hc.TryAdd(change(w1, 1, InstanceHandle{}, Alive)))
	require.NoError(t, hc.TryAdd(change(w2, 1, InstanceHandle{}, Alive)))

	assert.Equal(t, 2, hc.Len())
	c1, ok := hc.Get(w1, 1)
	require.True(t, ok)
	assert.Equal(t, w1, c1.WriterGUID)
	c2, ok := hc.Get(w2, 1)
	require.True(t, ok)
	assert.Equal(t, w2, c2.WriterGUID)

	assert.Len(t, hc.IterFrom(w1, seqnum.First), 1)
	assert.Len(t, hc.IterFrom(w2, seqnum.First), 1)
}
