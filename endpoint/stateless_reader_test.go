package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/wire/submsg"
)

func TestStatelessReaderDeliversData(t *testing.T) {
	hc := newTestHistoryCache(qos.History{Kind: qos.KeepLast, Depth: 1})
	listener := &recordingReaderListener{}
	r := NewStatelessReader(ReaderAttributes{GUID: testGUID(t, 0x02)}, hc, listener)

	writer := testGUID(t, 0x01)
	r.OnData(writer.Prefix, submsg.Data{
		WriterID: writer.EntityID,
		WriterSN: 1,
		SerializedData: &submsg.SerializedPayload{
			Encapsulation: submsg.EncapCDR_LE,
			Data:          []byte("payload"),
		},
	})

	require.Equal(t, 1, listener.deliveredLen())
	assert.Equal(t, []byte("payload"), listener.delivered[0].Payload)
}

func TestStatelessReaderDropsDuplicateSequenceNumber(t *testing.T) {
	hc := newTestHistoryCache(qos.History{Kind: qos.KeepLast, Depth: 1})
	listener := &recordingReaderListener{}
	r := NewStatelessReader(ReaderAttributes{GUID: testGUID(t, 0x02)}, hc, listener)

	writer := testGUID(t, 0x01)
	data := submsg.Data{WriterID: writer.EntityID, WriterSN: 1}
	r.OnData(writer.Prefix, data)
	r.OnData(writer.Prefix, data)

	assert.Equal(t, 1, listener.deliveredLen())
}
