// Package wlp implements the Writer Liveliness Protocol of spec.md
// §4.9: a reserved built-in StatefulWriter/StatefulReader pair that
// carries periodic ParticipantMessage samples, each keyed by a 16-byte
// value encoding the announcing participant's GuidPrefix plus the
// liveliness kind being asserted. The periodic assertion runs as a
// rescheduling event on the participant's shared scheduler.Scheduler,
// firing every min(lease_duration)/2.
package wlp

import (
	"sync"
	"time"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/endpoint"
	"github.com/rtps-go/rtps/history"
	"github.com/rtps-go/rtps/rtpslog"
	"github.com/rtps-go/rtps/scheduler"
	"github.com/rtps-go/rtps/transport"
)

// KeyLength is the size of a ParticipantMessage key: a 12-byte
// GuidPrefix followed by a 4-byte big-endian LivelinessKind.
const KeyLength = guid.PrefixLength + 4

// Listener is told when a remote participant asserts liveliness of a
// given kind, so that AUTOMATIC/MANUAL_BY_PARTICIPANT matched writers
// from that participant can have their lease refreshed (spec.md §4.9,
// "refreshed implicitly by any RTPS traffic" generalizes, for a
// participant with no other traffic to send, to this periodic
// assertion).
type Listener interface {
	OnParticipantAsserted(prefix guid.Prefix, kind qos.LivelinessKind)
}

// NopListener ignores every assertion.
type NopListener struct{}

func (NopListener) OnParticipantAsserted(guid.Prefix, qos.LivelinessKind) {}

type localWriter struct {
	kind          qos.LivelinessKind
	leaseDuration time.Duration
}

// Protocol runs WLP for one local RTPS participant: the built-in
// endpoint pair, the registry of local writers grouped by liveliness
// kind, and the periodic assertion loop for AUTOMATIC and
// MANUAL_BY_PARTICIPANT writers (MANUAL_BY_TOPIC is asserted
// out-of-band, per writer, via AssertWriterLiveliness).
type Protocol struct {
	mu sync.Mutex

	selfPrefix guid.Prefix
	builtinW   *endpoint.StatefulWriter
	builtinR   *endpoint.StatefulReader

	localWriters map[guid.GUID]localWriter
	// minLease[kind] is the smallest lease_duration among local
	// writers of that kind, recomputed whenever the registry changes;
	// the periodic assertion period is minLease/2 (spec.md §4.9).
	minLease map[qos.LivelinessKind]time.Duration

	period   time.Duration
	listener Listener
	log      *rtpslog.Logger

	sched     *scheduler.Scheduler
	assertEvt *scheduler.Event
}

type readerListener struct{ p *Protocol }

func (l readerListener) OnDataAvailable(c *history.CacheChange) {
	prefix, kind, ok := DecodeKey(c.Payload)
	if !ok {
		return
	}
	l.p.listener.OnParticipantAsserted(prefix, kind)
}
func (readerListener) OnMatched(guid.GUID)                   {}
func (readerListener) OnUnmatched(guid.GUID)                 {}
func (readerListener) OnLivelinessChanged(guid.GUID, bool) {}

// New constructs the WLP built-in endpoint pair for a participant.
// sched is the owning Participant's shared scheduler.Scheduler, which
// runs the periodic assertion loop as a rescheduling event rather than
// its own goroutine timer.
func New(selfPrefix guid.Prefix, sender transport.Sender, listener Listener, sched *scheduler.Scheduler, log *rtpslog.Logger) *Protocol {
	if listener == nil {
		listener = NopListener{}
	}
	p := &Protocol{
		selfPrefix:   selfPrefix,
		localWriters: make(map[guid.GUID]localWriter),
		minLease:     make(map[qos.LivelinessKind]time.Duration),
		listener:     listener,
		sched:        sched,
		log:          log,
	}

	wGUID := guid.GUID{Prefix: selfPrefix, EntityID: guid.EntityIDWriterLivelinessWriter}
	rGUID := guid.GUID{Prefix: selfPrefix, EntityID: guid.EntityIDWriterLivelinessReader}
	wqos := qos.DefaultWriterQoS()
	wqos.Durability = qos.Volatile
	wqos.Reliability.Kind = qos.Reliable
	rqos := qos.DefaultReaderQoS()
	rqos.Durability = qos.Volatile
	rqos.Reliability.Kind = qos.Reliable

	p.builtinW = endpoint.NewStatefulWriter(
		endpoint.WriterAttributes{GUID: wGUID, TopicName: "DCPSParticipantMessage", TypeName: "ParticipantMessageData", QoS: wqos},
		history.New(wqos.History, wqos.ResourceLimits, history.NewPool(history.DynamicReserve, 0)),
		sender, endpoint.NopWriterListener{}, log)
	p.builtinR = endpoint.NewStatefulReader(
		endpoint.ReaderAttributes{GUID: rGUID, TopicName: "DCPSParticipantMessage", TypeName: "ParticipantMessageData", QoS: rqos},
		history.New(rqos.History, rqos.ResourceLimits, history.NewPool(history.DynamicReserve, 0)),
		sender, readerListener{p: p}, log)

	return p
}

// Start schedules the periodic assertion event, if any local writer
// has registered a lease by now.
func (p *Protocol) Start() {
	p.mu.Lock()
	p.rescheduleAssertLocked()
	p.mu.Unlock()
}

// Stop cancels the assertion event and halts the built-in endpoints'
// own background loops, waiting for all to exit.
func (p *Protocol) Stop() {
	p.mu.Lock()
	if p.assertEvt != nil {
		p.sched.Cancel(p.assertEvt)
		p.assertEvt = nil
	}
	p.mu.Unlock()
	p.builtinW.Halt()
	p.builtinR.Halt()
	p.builtinW.Wait()
	p.builtinR.Wait()
}

// OnParticipantDiscovered matches this participant's WLP built-in pair
// to a newly-discovered remote's own WLP pair.
func (p *Protocol) OnParticipantDiscovered(remotePrefix guid.Prefix, sel locator.Selector) {
	remoteW := guid.GUID{Prefix: remotePrefix, EntityID: guid.EntityIDWriterLivelinessWriter}
	remoteR := guid.GUID{Prefix: remotePrefix, EntityID: guid.EntityIDWriterLivelinessReader}
	p.builtinW.MatchedReaderAdd(remoteR, true, false, 0, sel)
	p.builtinR.MatchedWriterAdd(remoteW, qos.Volatile, 0, 0, sel)
}

// OnParticipantRemoved tears down the WLP-to-WLP match for a departed
// remote.
func (p *Protocol) OnParticipantRemoved(remotePrefix guid.Prefix) {
	p.builtinW.MatchedReaderRemove(guid.GUID{Prefix: remotePrefix, EntityID: guid.EntityIDWriterLivelinessReader})
	p.builtinR.MatchedWriterRemove(guid.GUID{Prefix: remotePrefix, EntityID: guid.EntityIDWriterLivelinessWriter})
}

// AddLocalWriter registers a local writer's liveliness kind and lease
// duration, recomputing the assertion period for its kind group
// (spec.md §4.9: "scheduled... at min(lease_duration)/2"). Writers
// with MANUAL_BY_TOPIC liveliness are recorded but never assert
// periodically — the application must call AssertWriterLiveliness.
func (p *Protocol) AddLocalWriter(g guid.GUID, kind qos.LivelinessKind, leaseDuration time.Duration) {
	p.mu.Lock()
	p.localWriters[g] = localWriter{kind: kind, leaseDuration: leaseDuration}
	p.recomputeMinLeaseLocked()
	p.rescheduleAssertLocked()
	p.mu.Unlock()
}

// RemoveLocalWriter drops a local writer's liveliness registration.
func (p *Protocol) RemoveLocalWriter(g guid.GUID) {
	p.mu.Lock()
	delete(p.localWriters, g)
	p.recomputeMinLeaseLocked()
	p.rescheduleAssertLocked()
	p.mu.Unlock()
}

func (p *Protocol) recomputeMinLeaseLocked() {
	p.minLease = make(map[qos.LivelinessKind]time.Duration)
	for _, lw := range p.localWriters {
		if lw.kind == qos.ManualByTopic {
			continue
		}
		cur, ok := p.minLease[lw.kind]
		if !ok || lw.leaseDuration < cur {
			p.minLease[lw.kind] = lw.leaseDuration
		}
	}

	var shortest time.Duration
	for _, d := range p.minLease {
		if d <= 0 {
			continue
		}
		if shortest == 0 || d < shortest {
			shortest = d
		}
	}
	if shortest <= 0 {
		p.period = 0
	} else {
		p.period = shortest / 2
	}
}

// rescheduleAssertLocked cancels any pending assertion event and
// schedules a new one at the current period, called with p.mu held
// whenever the registry (and so p.period) changes.
func (p *Protocol) rescheduleAssertLocked() {
	if p.assertEvt != nil {
		p.sched.Cancel(p.assertEvt)
		p.assertEvt = nil
	}
	if p.period <= 0 {
		return
	}
	p.assertEvt = p.sched.After(p.period, p.onAssertTick)
}

// onAssertTick fires on the scheduler goroutine: asserts every
// registered kind, then reschedules itself at the (possibly changed)
// current period.
func (p *Protocol) onAssertTick() {
	p.mu.Lock()
	kinds := make([]qos.LivelinessKind, 0, len(p.minLease))
	for k := range p.minLease {
		kinds = append(kinds, k)
	}
	p.mu.Unlock()
	for _, k := range kinds {
		p.AssertWriterLiveliness(k)
	}
	p.mu.Lock()
	p.rescheduleAssertLocked()
	p.mu.Unlock()
}

// Reader exposes the built-in ParticipantMessage reader so a
// participant's message dispatcher can route an incoming DATA/
// HEARTBEAT/GAP submessage addressed to EntityIDWriterLivelinessReader
// to it, the same way sedp.Endpoints exposes its two built-in readers.
func (p *Protocol) Reader() *endpoint.StatefulReader { return p.builtinR }

// AssertWriterLiveliness immediately emits a ParticipantMessage for
// kind, used both for the application's explicit assert_liveliness
// call (MANUAL_BY_PARTICIPANT, MANUAL_BY_TOPIC) and internally by the
// periodic loop (AUTOMATIC, MANUAL_BY_PARTICIPANT).
func (p *Protocol) AssertWriterLiveliness(kind qos.LivelinessKind) {
	key := EncodeKey(p.selfPrefix, kind)
	if _, err := p.builtinW.Write(key); err != nil && p.log != nil {
		p.log.Warningf("wlp: assertion write failed: %v", err)
	}
}

// EncodeKey builds the 16-byte ParticipantMessage key for prefix/kind.
func EncodeKey(prefix guid.Prefix, kind qos.LivelinessKind) []byte {
	b := make([]byte, KeyLength)
	copy(b, prefix[:])
	k := uint32(kind)
	b[guid.PrefixLength+0] = byte(k >> 24)
	b[guid.PrefixLength+1] = byte(k >> 16)
	b[guid.PrefixLength+2] = byte(k >> 8)
	b[guid.PrefixLength+3] = byte(k)
	return b
}

// DecodeKey parses a ParticipantMessage key out of payload.
func DecodeKey(payload []byte) (guid.Prefix, qos.LivelinessKind, bool) {
	var prefix guid.Prefix
	if len(payload) < KeyLength {
		return prefix, 0, false
	}
	copy(prefix[:], payload[:guid.PrefixLength])
	k := uint32(payload[guid.PrefixLength])<<24 | uint32(payload[guid.PrefixLength+1])<<16 |
		uint32(payload[guid.PrefixLength+2])<<8 | uint32(payload[guid.PrefixLength+3])
	return prefix, qos.LivelinessKind(k), true
}
