package endpoint

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/core/seqnum"
	"github.com/rtps-go/rtps/history"
	"github.com/rtps-go/rtps/proxy"
	"github.com/rtps-go/rtps/rtpslog"
	"github.com/rtps-go/rtps/transport"
	"github.com/rtps-go/rtps/wire/cdr"
	"github.com/rtps-go/rtps/wire/submsg"
	"github.com/rtps-go/rtps/worker"
)

// DefaultFragmentSize bounds an unfragmented DATA's serialized payload
// (spec.md §4.4 "If a CacheChange's serialized payload exceeds the
// transport MTU minus RTPS overhead, the framer emits DATA_FRAG").
// 1400 matches a conservative UDP MTU budget, the value used in
// spec.md's S3 seed scenario.
const DefaultFragmentSize = 1400

// StatefulWriter is the RELIABLE writer of spec.md §4.4: one
// proxy.ReaderProxy per matched reader, periodic heartbeats, and
// ACKNACK/NACKFRAG-driven retransmission.
type StatefulWriter struct {
	worker.Worker
	mu sync.Mutex

	Attrs    WriterAttributes
	history  *history.HistoryCache
	sender   transport.Sender
	listener WriterListener
	log      *rtpslog.Logger

	nextSN         seqnum.SequenceNumber
	proxies        map[guid.GUID]*proxy.ReaderProxy
	heartbeatCount uint32
	fragmentSize   int
}

// NewStatefulWriter constructs a StatefulWriter and starts its
// heartbeat ticker (spec.md §4.4 "A periodic HEARTBEAT is emitted at
// interval heartbeat_period").
func NewStatefulWriter(attrs WriterAttributes, hc *history.HistoryCache, sender transport.Sender, listener WriterListener, log *rtpslog.Logger) *StatefulWriter {
	if listener == nil {
		listener = NopWriterListener{}
	}
	if attrs.HeartbeatPeriod <= 0 {
		attrs.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	w := &StatefulWriter{
		Attrs:        attrs,
		history:      hc,
		sender:       sender,
		listener:     listener,
		log:          log,
		nextSN:       seqnum.First,
		proxies:      make(map[guid.GUID]*proxy.ReaderProxy),
		fragmentSize: DefaultFragmentSize,
	}
	w.Go(w.heartbeatLoop)
	return w
}

func (w *StatefulWriter) heartbeatLoop() {
	period := w.Attrs.HeartbeatPeriod
	for {
		select {
		case <-w.HaltCh():
			return
		case <-time.After(period):
			w.sendHeartbeats()
		}
	}
}

// MatchedReaderAdd creates a ReaderProxy for remote and, per
// Durability (spec.md §4.4), queues the replay set it is entitled to
// on match. disablePositiveAcks/acksKeepDuration mirror the reader's
// requested Reliability.DisablePositiveACKs policy (spec.md §12).
func (w *StatefulWriter) MatchedReaderAdd(remote guid.GUID, reliable bool, disablePositiveAcks bool, acksKeepDuration time.Duration, sel locator.Selector) {
	w.mu.Lock()
	var lowMark seqnum.SequenceNumber
	switch w.Attrs.QoS.Durability {
	case qos.TransientLocal, qos.Transient:
		lowMark = seqnum.Unknown // everything still ALIVE in the cache is replayed
	default: // Volatile (Persistent is carried-through, not enforced here)
		lowMark = w.nextSN - 1 // only samples written from here on
	}
	rp := proxy.NewReaderProxy(remote, reliable, lowMark)
	rp.Locators = sel
	rp.DisablePositiveACKs = disablePositiveAcks
	rp.DisableACKsKeepDuration = acksKeepDuration
	if w.Attrs.QoS.Durability == qos.TransientLocal || w.Attrs.QoS.Durability == qos.Transient {
		for _, c := range w.history.IterFrom(w.Attrs.GUID, seqnum.First) {
			if c.Kind == history.Alive {
				rp.AddChange(c.SequenceNumber)
			}
		}
	}
	w.proxies[remote] = rp
	w.mu.Unlock()

	w.listener.OnMatched(remote)
	w.flushProxy(rp)
	w.sendHeartbeatTo(rp)
}

// MatchedReaderRemove drops remote's ReaderProxy.
func (w *StatefulWriter) MatchedReaderRemove(remote guid.GUID) {
	w.mu.Lock()
	_, existed := w.proxies[remote]
	delete(w.proxies, remote)
	w.mu.Unlock()
	if existed {
		w.listener.OnUnmatched(remote)
	}
}

// Write allocates a new CacheChange, admits it into the HistoryCache
// (blocking up to reliability.max_blocking_time under KEEP_ALL
// pressure, spec.md §5 "Suspension points"), queues it UNSENT on every
// matched ReaderProxy, and pushes it out immediately (push_mode).
func (w *StatefulWriter) Write(payload []byte) (seqnum.SequenceNumber, error) {
	w.mu.Lock()
	sn := w.nextSN
	c := &history.CacheChange{
		Kind:           history.Alive,
		WriterGUID:     w.Attrs.GUID,
		SequenceNumber: sn,
		Payload:        payload,
	}
	err := w.tryAddBlockingLocked(c)
	if err != nil {
		w.mu.Unlock()
		return seqnum.Unknown, err
	}
	w.nextSN++
	proxies := w.snapshotProxiesLocked()
	for _, rp := range proxies {
		rp.AddChange(sn)
	}
	w.mu.Unlock()

	for _, rp := range proxies {
		w.flushProxy(rp)
	}
	if !w.Attrs.PushMode {
		w.sendHeartbeats()
	}
	return sn, nil
}

// tryAddBlockingLocked implements the KEEP_ALL BUFFER_FULL blocking
// contract of spec.md §4.2/§5: retry admission until it succeeds or
// reliability.MaxBlockingTime elapses. w.mu is held on entry and
// re-acquired before return (briefly released while waiting).
func (w *StatefulWriter) tryAddBlockingLocked(c *history.CacheChange) error {
	deadline := time.Now().Add(w.Attrs.QoS.Reliability.MaxBlockingTime)
	for {
		err := w.history.TryAdd(c)
		if err == nil {
			return nil
		}
		if w.Attrs.QoS.Reliability.MaxBlockingTime <= 0 || time.Now().After(deadline) {
			return err
		}
		w.mu.Unlock()
		time.Sleep(time.Millisecond)
		w.mu.Lock()
	}
}

func (w *StatefulWriter) snapshotProxiesLocked() []*proxy.ReaderProxy {
	out := make([]*proxy.ReaderProxy, 0, len(w.proxies))
	for _, rp := range w.proxies {
		out = append(out, rp)
	}
	return out
}

// flushProxy sends every UNSENT/REQUESTED sequence number queued for
// rp, fragmenting large payloads into DATA_FRAG (spec.md §4.4
// "Fragmentation"); a sequence number no longer in the HistoryCache
// (evicted under KEEP_LAST) is retired with a GAP instead.
func (w *StatefulWriter) flushProxy(rp *proxy.ReaderProxy) {
	pending := rp.Unsent()
	if len(pending) == 0 {
		return
	}
	dests := rp.Locators.Select()
	for _, sn := range pending {
		w.mu.Lock()
		c, ok := w.history.Get(w.Attrs.GUID, sn)
		w.mu.Unlock()
		if !ok {
			w.sendGap(rp, sn)
			rp.Remove(sn)
			continue
		}
		if len(c.Payload) > w.fragmentSize {
			w.sendDataFrag(rp, dests, c)
		} else {
			w.sendData(rp, dests, c)
		}
		rp.MarkSent(sn, w.Attrs.NackSuppressionDuration)
	}
}

func (w *StatefulWriter) sendData(rp *proxy.ReaderProxy, dests []locator.Locator, c *history.CacheChange) {
	data := submsg.Data{
		ReaderID: rp.GUID.EntityID,
		WriterID: w.Attrs.GUID.EntityID,
		WriterSN: c.SequenceNumber,
	}
	if c.Kind == history.Alive {
		payload := submsg.SerializedPayload{Encapsulation: submsg.EncapCDR_LE, Data: c.Payload}
		data.SerializedData = &payload
	}
	hdr, body := submsg.EncodeData(cdr.LittleEndian, 0, data)
	w.sendOne(dests, hdr, body)
}

// sendDataFrag emits DATA_FRAG for a CacheChange too large to fit in
// one DATA. On a proxy's first attempt at seq it sends every fragment
// and records each as sent; on any later attempt (a NACKFRAG having
// marked specific fragment numbers REQUESTED via
// proxy.ReaderProxy.RequestFragment) it resends only the fragments
// still outstanding for that reader, rather than the whole sample.
func (w *StatefulWriter) sendDataFrag(rp *proxy.ReaderProxy, dests []locator.Locator, c *history.CacheChange) {
	fragments := fragmentPayload(c.Payload, w.fragmentSize)

	if !rp.FragmentsTracked(c.SequenceNumber) {
		for i, frag := range fragments {
			fragNum := uint32(i + 1)
			w.sendOneDataFrag(rp, dests, c, fragNum, frag)
			rp.MarkFragmentSent(c.SequenceNumber, fragNum)
		}
		return
	}

	for _, fragNum := range rp.RequestedFragments(c.SequenceNumber) {
		if fragNum < 1 || int(fragNum) > len(fragments) {
			continue
		}
		w.sendOneDataFrag(rp, dests, c, fragNum, fragments[fragNum-1])
		rp.MarkFragmentSent(c.SequenceNumber, fragNum)
	}
}

func (w *StatefulWriter) sendOneDataFrag(rp *proxy.ReaderProxy, dests []locator.Locator, c *history.CacheChange, fragNum uint32, frag []byte) {
	df := submsg.DataFrag{
		ReaderID:              rp.GUID.EntityID,
		WriterID:              w.Attrs.GUID.EntityID,
		WriterSN:              c.SequenceNumber,
		FragmentStartingNum:   fragNum,
		FragmentsInSubmessage: 1,
		FragmentSize:          uint16(w.fragmentSize),
		SampleSize:            uint32(len(c.Payload)),
		SerializedData:        frag,
	}
	hdr, body := submsg.EncodeDataFrag(cdr.LittleEndian, 0, df)
	w.sendOne(dests, hdr, body)
}

func (w *StatefulWriter) sendGap(rp *proxy.ReaderProxy, sn seqnum.SequenceNumber) {
	set := seqnum.NewSet(sn)
	gap := submsg.Gap{
		ReaderID: rp.GUID.EntityID,
		WriterID: w.Attrs.GUID.EntityID,
		GapStart: sn,
		GapList:  set,
	}
	hdr, body := submsg.EncodeGap(cdr.LittleEndian, 0, gap)
	w.sendOne(rp.Locators.Select(), hdr, body)
}

func (w *StatefulWriter) sendOne(dests []locator.Locator, hdr submsg.SubHeader, body []byte) {
	enc := submsg.NewEncoder(buildMessageHeader(w.Attrs.GUID))
	enc.Append(hdr, body)
	w.sender.Send(enc.Bytes(), dests)
}

// sendHeartbeats emits a HEARTBEAT to every matched reader (spec.md
// §4.4 "Heartbeat generation").
func (w *StatefulWriter) sendHeartbeats() {
	w.mu.Lock()
	proxies := w.snapshotProxiesLocked()
	w.mu.Unlock()
	for _, rp := range proxies {
		w.sendHeartbeatTo(rp)
	}
}

func (w *StatefulWriter) sendHeartbeatTo(rp *proxy.ReaderProxy) {
	w.mu.Lock()
	first := w.history.MinSeq(w.Attrs.GUID)
	if first == seqnum.Unknown {
		first = w.nextSN
	}
	last := w.nextSN - 1
	count := atomic.AddUint32(&w.heartbeatCount, 1)
	w.mu.Unlock()

	hb := submsg.Heartbeat{
		ReaderID: rp.GUID.EntityID,
		WriterID: w.Attrs.GUID.EntityID,
		FirstSN:  first,
		LastSN:   last,
		Count:    count,
		Final:    rp.AllAcknowledged(),
	}
	hdr, body := submsg.EncodeHeartbeat(cdr.LittleEndian, 0, hb)
	w.sendOne(rp.Locators.Select(), hdr, body)
}

// ApplyAckNack applies a reader's ACKNACK to its ReaderProxy and
// retransmits whatever it just marked REQUESTED (spec.md §4.4).
func (w *StatefulWriter) ApplyAckNack(remote guid.GUID, a submsg.AckNack) {
	w.mu.Lock()
	rp, ok := w.proxies[remote]
	w.mu.Unlock()
	if !ok {
		return
	}
	rp.ApplyAckNack(a.ReaderSNState, a.Count)
	w.flushProxy(rp)
}

// ApplyNackFrag requests retransmission of the fragments a reader
// still needs for one partially-delivered CacheChange.
func (w *StatefulWriter) ApplyNackFrag(remote guid.GUID, n submsg.NackFrag) {
	w.mu.Lock()
	rp, ok := w.proxies[remote]
	w.mu.Unlock()
	if !ok {
		return
	}
	n.FragmentNumberState.Each(func(fragNum uint32) {
		rp.RequestFragment(n.WriterSN, fragNum)
	})
	w.flushProxy(rp)
}

// HasChange reports whether sn is still present in this writer's own
// HistoryCache (false once KEEP_LAST eviction or RemoveChange has
// retired it).
func (w *StatefulWriter) HasChange(sn seqnum.SequenceNumber) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.history.Get(w.Attrs.GUID, sn)
	return ok
}

// WaitForAllAcked blocks until every ReaderProxy reports
// AllAcknowledged or timeout elapses (spec.md §5 "wait_for_all_acked").
func (w *StatefulWriter) WaitForAllAcked(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		w.mu.Lock()
		proxies := w.snapshotProxiesLocked()
		w.mu.Unlock()

		allAcked := true
		for _, rp := range proxies {
			if !rp.AllAcknowledged() {
				allAcked = false
				break
			}
		}
		if allAcked {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
