package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/history"
	"github.com/rtps-go/rtps/wire/submsg"
)

func newTestHistoryCache(h qos.History) *history.HistoryCache {
	return history.New(h, qos.ResourceLimits{}, history.NewPool(history.DynamicReserve, 0))
}

func TestStatelessWriterSendsDataToMatchedReaders(t *testing.T) {
	hc := newTestHistoryCache(qos.History{Kind: qos.KeepLast, Depth: 1})
	sender := &fakeSender{}
	w := NewStatelessWriter(WriterAttributes{GUID: testGUID(t, 0x01)}, hc, sender)

	dest := testLocator(t, "10.0.0.2", 7400)
	w.MatchedReaderAdd(selOf(dest))

	sn, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, int(sn))

	w.SendUnsentChanges()
	require.Equal(t, 1, sender.len())
	sent := sender.last()
	assert.Equal(t, []submsg.Kind{submsg.KindData}, kindsOf(sent))

	d, err := submsg.DecodeData(sent.msg.Submessages[0].Header.Flags, sent.msg.Submessages[0].Body, sent.msg.Submessages[0].Origin)
	require.NoError(t, err)
	require.NotNil(t, d.SerializedData)
	assert.Equal(t, []byte("hello"), d.SerializedData.Data)
}

func TestStatelessWriterSendUnsentChangesIsNoopWithoutMatchedReaders(t *testing.T) {
	hc := newTestHistoryCache(qos.History{Kind: qos.KeepLast, Depth: 1})
	sender := &fakeSender{}
	w := NewStatelessWriter(WriterAttributes{GUID: testGUID(t, 0x01)}, hc, sender)

	_, err := w.Write([]byte("x"))
	require.NoError(t, err)
	w.SendUnsentChanges()
	assert.Equal(t, 0, sender.len())
}

func TestStatelessWriterDedupsMatchedReaderLocators(t *testing.T) {
	hc := newTestHistoryCache(qos.History{Kind: qos.KeepLast, Depth: 1})
	sender := &fakeSender{}
	w := NewStatelessWriter(WriterAttributes{GUID: testGUID(t, 0x01)}, hc, sender)

	dest := testLocator(t, "10.0.0.2", 7400)
	w.MatchedReaderAdd(selOf(dest))
	w.MatchedReaderAdd(selOf(dest))

	_, err := w.Write([]byte("x"))
	require.NoError(t, err)
	w.SendUnsentChanges()
	require.Equal(t, 1, sender.len())
	assert.Len(t, sender.last().dests, 1)
}
