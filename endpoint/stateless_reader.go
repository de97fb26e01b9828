package endpoint

import (
	"sync"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/history"
	"github.com/rtps-go/rtps/wire/submsg"
)

// StatelessReader is the BEST_EFFORT/SPDP reader of spec.md §4.3: no
// per-writer proxy, every DATA is admitted directly into the
// HistoryCache and handed to the listener.
type StatelessReader struct {
	mu       sync.Mutex
	Attrs    ReaderAttributes
	history  *history.HistoryCache
	listener ReaderListener
}

// NewStatelessReader constructs a StatelessReader.
func NewStatelessReader(attrs ReaderAttributes, hc *history.HistoryCache, l ReaderListener) *StatelessReader {
	if l == nil {
		l = NopReaderListener{}
	}
	return &StatelessReader{Attrs: attrs, history: hc, listener: l}
}

// OnData handles a received DATA submessage addressed to this reader.
func (r *StatelessReader) OnData(writerPrefix guid.Prefix, d submsg.Data) {
	r.mu.Lock()
	defer r.mu.Unlock()

	writerGUID := guid.GUID{Prefix: writerPrefix, EntityID: d.WriterID}
	c := &history.CacheChange{
		Kind:           history.Alive,
		WriterGUID:     writerGUID,
		SequenceNumber: d.WriterSN,
	}
	if d.SerializedData != nil {
		c.Payload = d.SerializedData.Data
	}
	if err := r.history.TryAdd(c); err != nil {
		return // duplicate or resource exhausted: drop silently (spec.md §7)
	}
	r.listener.OnDataAvailable(c)
}
