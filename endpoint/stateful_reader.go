package endpoint

import (
	"sync"
	"time"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/core/seqnum"
	"github.com/rtps-go/rtps/fragment"
	"github.com/rtps-go/rtps/history"
	"github.com/rtps-go/rtps/proxy"
	"github.com/rtps-go/rtps/rtpslog"
	"github.com/rtps-go/rtps/transport"
	"github.com/rtps-go/rtps/wire/cdr"
	"github.com/rtps-go/rtps/wire/submsg"
	"github.com/rtps-go/rtps/worker"
)

// DefaultLivelinessCheckInterval bounds how often a StatefulReader
// scans matched WriterProxy lease deadlines (spec.md §4.5
// "Liveliness on the reader").
const DefaultLivelinessCheckInterval = 1 * time.Second

// DefaultPitStopCapacity bounds the number of concurrently in-flight
// DATA_FRAG reassemblies a StatefulReader holds (spec.md §4.6).
const DefaultPitStopCapacity = 64

// StatefulReader is the RELIABLE reader of spec.md §4.5: one
// proxy.WriterProxy per matched writer, ACKNACK/NACKFRAG generation,
// ownership arbitration, and DATA_FRAG reassembly via fragment.PitStop.
type StatefulReader struct {
	worker.Worker
	mu sync.Mutex

	Attrs    ReaderAttributes
	history  *history.HistoryCache
	sender   transport.Sender
	listener ReaderListener
	log      *rtpslog.Logger
	pitstop  *fragment.PitStop

	writers        map[guid.GUID]*proxy.WriterProxy
	leaseDurations map[guid.GUID]time.Duration
	seenHeartbeat  map[guid.GUID]bool

	ackNackPending  map[guid.GUID]bool
	nackFragPending map[fragment.Key]bool
	ackNackCount    uint32
	nackFragCount   uint32

	ownerWriter   map[history.InstanceHandle]guid.GUID
	ownerStrength map[history.InstanceHandle]int32
}

// NewStatefulReader constructs a StatefulReader and starts its
// liveliness-check ticker.
func NewStatefulReader(attrs ReaderAttributes, hc *history.HistoryCache, sender transport.Sender, listener ReaderListener, log *rtpslog.Logger) *StatefulReader {
	if listener == nil {
		listener = NopReaderListener{}
	}
	if attrs.HeartbeatResponseDelay <= 0 {
		attrs.HeartbeatResponseDelay = DefaultHeartbeatResponseDelay
	}
	r := &StatefulReader{
		Attrs:           attrs,
		history:         hc,
		sender:          sender,
		listener:        listener,
		log:             log,
		pitstop:         fragment.NewPitStop(DefaultPitStopCapacity),
		writers:         make(map[guid.GUID]*proxy.WriterProxy),
		leaseDurations:  make(map[guid.GUID]time.Duration),
		seenHeartbeat:   make(map[guid.GUID]bool),
		ackNackPending:  make(map[guid.GUID]bool),
		nackFragPending: make(map[fragment.Key]bool),
		ownerWriter:     make(map[history.InstanceHandle]guid.GUID),
		ownerStrength:   make(map[history.InstanceHandle]int32),
	}
	r.Go(r.livelinessLoop)
	return r
}

func (r *StatefulReader) livelinessLoop() {
	for {
		select {
		case <-r.HaltCh():
			return
		case <-time.After(DefaultLivelinessCheckInterval):
			r.checkLiveliness()
		}
	}
}

func (r *StatefulReader) checkLiveliness() {
	now := time.Now()
	r.mu.Lock()
	type expiry struct {
		remote guid.GUID
		wp     *proxy.WriterProxy
	}
	var expired []expiry
	for remote, wp := range r.writers {
		expired = append(expired, expiry{remote, wp})
	}
	r.mu.Unlock()

	for _, e := range expired {
		if e.wp.ExpireIfLeaseElapsed(now) {
			r.listener.OnLivelinessChanged(e.remote, false)
		}
	}
}

// MatchedWriterAdd creates a WriterProxy for remote (spec.md §4.5,
// §4.8 "Matching").
func (r *StatefulReader) MatchedWriterAdd(remote guid.GUID, durability qos.DurabilityKind, ownershipStrength int32, livelinessLease time.Duration, sel locator.Selector) {
	wp := proxy.NewWriterProxy(remote, durability)
	wp.OwnershipStrength = ownershipStrength
	wp.Locators = sel
	if livelinessLease <= 0 {
		livelinessLease = 24 * time.Hour // AUTOMATIC with no announced lease: treat as effectively unbounded
	}
	wp.RefreshLease(livelinessLease)

	r.mu.Lock()
	r.writers[remote] = wp
	r.leaseDurations[remote] = livelinessLease
	r.mu.Unlock()

	r.listener.OnMatched(remote)
}

// MatchedWriterRemove drops remote's WriterProxy and any fragments it
// had in flight (spec.md §4.6: "Dropped on unmatch").
func (r *StatefulReader) MatchedWriterRemove(remote guid.GUID) {
	r.mu.Lock()
	_, existed := r.writers[remote]
	delete(r.writers, remote)
	delete(r.leaseDurations, remote)
	delete(r.seenHeartbeat, remote)
	delete(r.ackNackPending, remote)
	r.mu.Unlock()
	r.pitstop.DropWriter(remote)
	if existed {
		r.listener.OnUnmatched(remote)
	}
}

// MatchedWritersByPrefix returns the GUIDs of every currently matched
// WriterProxy whose participant prefix is remotePrefix, so a WLP
// ParticipantMessage assertion (which names a participant, not a
// specific writer) can refresh every affected proxy's lease.
func (r *StatefulReader) MatchedWritersByPrefix(remotePrefix guid.Prefix) []guid.GUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []guid.GUID
	for g := range r.writers {
		if g.Prefix == remotePrefix {
			out = append(out, g)
		}
	}
	return out
}

// RefreshWriterLease resets remote's WriterProxy lease deadline without
// any accompanying user data, e.g. on receipt of a WLP
// ParticipantMessageData liveliness assertion (spec.md §4.9): an
// AUTOMATIC or MANUAL_BY_PARTICIPANT writer's liveliness can be
// asserted by WLP alone, with no DATA/HEARTBEAT ever sent on this
// reader's own matched WriterProxy.
func (r *StatefulReader) RefreshWriterLease(remote guid.GUID) {
	r.mu.Lock()
	wp, ok := r.writers[remote]
	leaseDur := r.leaseDurations[remote]
	r.mu.Unlock()
	if !ok {
		return
	}
	if leaseDur <= 0 {
		leaseDur = 24 * time.Hour
	}
	wp.RefreshLease(leaseDur)
}

// OnData handles a received DATA submessage from a matched writer.
func (r *StatefulReader) OnData(writerPrefix guid.Prefix, d submsg.Data) {
	writerGUID := guid.GUID{Prefix: writerPrefix, EntityID: d.WriterID}
	r.mu.Lock()
	wp, ok := r.writers[writerGUID]
	leaseDur := r.leaseDurations[writerGUID]
	r.mu.Unlock()
	if !ok {
		return
	}
	wp.RefreshLease(leaseDur)
	if !wp.ApplyData(d.WriterSN) {
		return
	}

	c := &history.CacheChange{
		Kind:           history.Alive,
		WriterGUID:     writerGUID,
		SequenceNumber: d.WriterSN,
	}
	if d.SerializedData != nil {
		c.Payload = d.SerializedData.Data
	}
	r.admitAndDeliver(writerGUID, wp, c)
}

// OnDataFrag handles a received DATA_FRAG submessage, reassembling via
// pitstop and requesting missing fragments via NACKFRAG once
// heartbeat_response_delay elapses without completion.
func (r *StatefulReader) OnDataFrag(writerPrefix guid.Prefix, df submsg.DataFrag) {
	writerGUID := guid.GUID{Prefix: writerPrefix, EntityID: df.WriterID}
	r.mu.Lock()
	wp, ok := r.writers[writerGUID]
	leaseDur := r.leaseDurations[writerGUID]
	r.mu.Unlock()
	if !ok {
		return
	}
	wp.RefreshLease(leaseDur)

	fragmentCount := int((df.SampleSize + uint32(df.FragmentSize) - 1) / uint32(df.FragmentSize))
	key := fragment.Key{WriterGUID: writerGUID, SequenceNumber: df.WriterSN}
	r.pitstop.Start(key, writerGUID, df.SampleSize, uint32(df.FragmentSize), fragmentCount)
	change, done := r.pitstop.ApplyFragment(key, df.FragmentStartingNum, df.SerializedData)
	if !done {
		r.scheduleNackFrag(wp, df.WriterSN, key)
		return
	}
	if !wp.ApplyData(df.WriterSN) {
		return
	}
	r.admitAndDeliver(writerGUID, wp, change)
}

// OnHeartbeat handles a HEARTBEAT submessage, refreshing liveliness
// when the L-flag is set and scheduling an ACKNACK response (spec.md
// §4.5 "Heartbeat handling").
func (r *StatefulReader) OnHeartbeat(writerPrefix guid.Prefix, hb submsg.Heartbeat) {
	writerGUID := guid.GUID{Prefix: writerPrefix, EntityID: hb.WriterID}
	r.mu.Lock()
	wp, ok := r.writers[writerGUID]
	leaseDur := r.leaseDurations[writerGUID]
	first := !r.seenHeartbeat[writerGUID]
	r.seenHeartbeat[writerGUID] = true
	r.mu.Unlock()
	if !ok {
		return
	}
	if hb.Liveliness {
		wp.RefreshLease(leaseDur)
	}
	wp.ApplyHeartbeat(hb.FirstSN, hb.LastSN, hb.Count, hb.Final)
	r.scheduleAckNack(wp, first)
}

// OnGap handles a GAP submessage, marking the covered range LOST and
// abandoning any in-flight reassembly it covers.
func (r *StatefulReader) OnGap(writerPrefix guid.Prefix, g submsg.Gap) {
	writerGUID := guid.GUID{Prefix: writerPrefix, EntityID: g.WriterID}
	r.mu.Lock()
	wp, ok := r.writers[writerGUID]
	r.mu.Unlock()
	if !ok {
		return
	}
	wp.ApplyGap(g.GapStart, g.GapList)
	for seq := g.GapStart; seq < g.GapList.Base; seq++ {
		r.pitstop.Drop(fragment.Key{WriterGUID: writerGUID, SequenceNumber: seq})
	}
	g.GapList.Each(func(seq seqnum.SequenceNumber) {
		r.pitstop.Drop(fragment.Key{WriterGUID: writerGUID, SequenceNumber: seq})
	})
}

// admitAndDeliver applies EXCLUSIVE ownership arbitration, admits c
// into the HistoryCache, and hands it to the listener (spec.md §4.5
// "Ownership").
func (r *StatefulReader) admitAndDeliver(writerGUID guid.GUID, wp *proxy.WriterProxy, c *history.CacheChange) {
	if r.Attrs.QoS.Ownership.Kind == qos.Exclusive {
		r.mu.Lock()
		cur, exists := r.ownerWriter[c.InstanceHandle]
		curStrength := r.ownerStrength[c.InstanceHandle]
		strength := wp.OwnershipStrength
		if exists && cur != writerGUID && strength <= curStrength {
			r.mu.Unlock()
			return // a weaker or equal-strength writer than the incumbent owner: drop
		}
		r.ownerWriter[c.InstanceHandle] = writerGUID
		r.ownerStrength[c.InstanceHandle] = strength
		r.mu.Unlock()
	}

	r.mu.Lock()
	err := r.history.TryAdd(c)
	r.mu.Unlock()
	if err != nil {
		return // duplicate or resource exhausted: drop silently (spec.md §7)
	}
	r.listener.OnDataAvailable(c)
}

// scheduleAckNack debounces ACKNACK generation to at most once per
// heartbeat_response_delay window, except the first HEARTBEAT ever
// seen from a writer, which is answered immediately (spec.md §4.5
// "initial ACKNACK").
func (r *StatefulReader) scheduleAckNack(wp *proxy.WriterProxy, immediate bool) {
	delay := r.Attrs.HeartbeatResponseDelay

	r.mu.Lock()
	if r.ackNackPending[wp.GUID] && !immediate {
		r.mu.Unlock()
		return
	}
	r.ackNackPending[wp.GUID] = true
	r.mu.Unlock()

	go func() {
		if !immediate && delay > 0 {
			time.Sleep(delay)
		}
		r.mu.Lock()
		delete(r.ackNackPending, wp.GUID)
		r.mu.Unlock()
		r.sendAckNack(wp)
	}()
}

func (r *StatefulReader) sendAckNack(wp *proxy.WriterProxy) {
	base := wp.ChangesLowMark + 1
	missing := wp.MissingAndRequested()
	if len(missing) == 0 && r.Attrs.QoS.Reliability.DisablePositiveACKs {
		return // this reader's own QoS says the writer relies on its keep_duration implicit-ack timer instead
	}
	lastSeq := base - 1
	missingSet := make(map[seqnum.SequenceNumber]bool, len(missing))
	for _, s := range missing {
		missingSet[s] = true
		if s > lastSeq {
			lastSeq = s
		}
	}
	sets := seqnum.SplitAt256(base, lastSeq, func(s seqnum.SequenceNumber) bool { return missingSet[s] })
	if len(sets) == 0 {
		sets = []*seqnum.SequenceNumberSet{seqnum.NewSet(base)}
	}
	for _, set := range sets {
		r.mu.Lock()
		r.ackNackCount++
		count := r.ackNackCount
		r.mu.Unlock()
		an := submsg.AckNack{
			ReaderID:      r.Attrs.GUID.EntityID,
			WriterID:      wp.GUID.EntityID,
			ReaderSNState: set,
			Count:         count,
			Final:         len(missing) == 0,
		}
		hdr, body := submsg.EncodeAckNack(cdr.LittleEndian, 0, an)
		r.sendOne(wp.Locators.Select(), hdr, body)
	}
}

// scheduleNackFrag debounces NACKFRAG generation for one in-progress
// reassembly to at most once per heartbeat_response_delay window.
func (r *StatefulReader) scheduleNackFrag(wp *proxy.WriterProxy, sn seqnum.SequenceNumber, key fragment.Key) {
	r.mu.Lock()
	if r.nackFragPending[key] {
		r.mu.Unlock()
		return
	}
	r.nackFragPending[key] = true
	r.mu.Unlock()

	delay := r.Attrs.HeartbeatResponseDelay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		r.mu.Lock()
		delete(r.nackFragPending, key)
		r.mu.Unlock()
		r.sendNackFrag(wp, sn, key)
	}()
}

func (r *StatefulReader) sendNackFrag(wp *proxy.WriterProxy, sn seqnum.SequenceNumber, key fragment.Key) {
	missing, ok := r.pitstop.MissingFragments(key)
	if !ok || len(missing) == 0 {
		return // completed or dropped meanwhile
	}
	set := submsg.NewFragmentNumberSet(missing[0])
	for _, n := range missing {
		set.Add(n)
	}
	r.mu.Lock()
	r.nackFragCount++
	count := r.nackFragCount
	r.mu.Unlock()
	nf := submsg.NackFrag{
		ReaderID:            r.Attrs.GUID.EntityID,
		WriterID:            wp.GUID.EntityID,
		WriterSN:            sn,
		FragmentNumberState: set,
		Count:               count,
	}
	hdr, body := submsg.EncodeNackFrag(cdr.LittleEndian, 0, nf)
	r.sendOne(wp.Locators.Select(), hdr, body)
}

func (r *StatefulReader) sendOne(dests []locator.Locator, hdr submsg.SubHeader, body []byte) {
	enc := submsg.NewEncoder(buildMessageHeader(r.Attrs.GUID))
	enc.Append(hdr, body)
	r.sender.Send(enc.Bytes(), dests)
}
