package endpoint

import (
	"sync"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/seqnum"
	"github.com/rtps-go/rtps/history"
	"github.com/rtps-go/rtps/transport"
	"github.com/rtps-go/rtps/wire/cdr"
	"github.com/rtps-go/rtps/wire/submsg"
)

// StatelessWriter is the BEST_EFFORT/SPDP writer of spec.md §4.3: no
// per-reader state, just a deduplicated union of matched readers'
// locators, and no retransmission on loss.
type StatelessWriter struct {
	mu sync.Mutex

	Attrs   WriterAttributes
	history *history.HistoryCache
	sender  transport.Sender

	nextSN    seqnum.SequenceNumber
	locators  []locator.Locator
	unsent    []seqnum.SequenceNumber
}

// NewStatelessWriter constructs a StatelessWriter publishing over
// sender.
func NewStatelessWriter(attrs WriterAttributes, hc *history.HistoryCache, sender transport.Sender) *StatelessWriter {
	return &StatelessWriter{
		Attrs:   attrs,
		history: hc,
		sender:  sender,
		nextSN:  seqnum.First,
	}
}

// MatchedReaderAdd unions sel's locators into the destination set
// (spec.md §4.3: "a shrinked set of destination locators, union of
// matched readers' locators, with duplicates removed").
func (w *StatelessWriter) MatchedReaderAdd(sel locator.Selector) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.locators = locator.Dedup(append(w.locators, sel.Select()...))
}

// Write allocates a new CacheChange, admits it into the HistoryCache,
// and queues it UNSENT for the next SendUnsentChanges sweep.
func (w *StatelessWriter) Write(payload []byte) (seqnum.SequenceNumber, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sn := w.nextSN
	c := &history.CacheChange{
		Kind:           history.Alive,
		WriterGUID:     w.Attrs.GUID,
		SequenceNumber: sn,
		Payload:        payload,
	}
	if err := w.history.TryAdd(c); err != nil {
		return seqnum.Unknown, err
	}
	w.nextSN++
	w.unsent = append(w.unsent, sn)
	return sn, nil
}

// SendUnsentChanges iterates UNSENT CacheChanges once per matched
// reader-locator and drops them from the unsent list (spec.md §4.3).
// There is no retransmission on loss.
func (w *StatelessWriter) SendUnsentChanges() {
	w.mu.Lock()
	pending := w.unsent
	w.unsent = nil
	dests := append([]locator.Locator(nil), w.locators...)
	w.mu.Unlock()

	if len(dests) == 0 {
		return
	}
	for _, sn := range pending {
		c, ok := w.history.Get(w.Attrs.GUID, sn)
		if !ok {
			continue
		}
		data := submsg.Data{
			ReaderID: guid.EntityIDUnknown,
			WriterID: w.Attrs.GUID.EntityID,
			WriterSN: sn,
		}
		if c.Kind == history.Alive {
			payload := submsg.SerializedPayload{Encapsulation: submsg.EncapCDR_LE, Data: c.Payload}
			data.SerializedData = &payload
		}
		hdr, body := submsg.EncodeData(cdr.LittleEndian, 0, data)
		enc := submsg.NewEncoder(buildMessageHeader(w.Attrs.GUID))
		enc.Append(hdr, body)
		w.sender.Send(enc.Bytes(), dests)
	}
}
