// Package sedp implements the Simple Endpoint Discovery Protocol of
// spec.md §4.8: two StatefulWriter/StatefulReader pairs per
// participant (one for DataWriter announcements, one for DataReader
// announcements) that publish/consume WriterProxyData/ReaderProxyData,
// plus the QoS-compatibility match loop that turns a remote
// announcement into MatchedReaderAdd/MatchedWriterAdd calls on the
// local endpoint it matches.
package sedp

import (
	"sync"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/discovery"
	"github.com/rtps-go/rtps/discovery/match"
	"github.com/rtps-go/rtps/endpoint"
	"github.com/rtps-go/rtps/history"
	"github.com/rtps-go/rtps/rtpslog"
	"github.com/rtps-go/rtps/transport"
	"github.com/rtps-go/rtps/wire/cdr"
	"github.com/rtps-go/rtps/wire/plist"
)

// Listener is told about matching decisions SEDP reaches. The
// participant orchestrator implements this to wire/unwire the actual
// user DataWriter/DataReader endpoints it owns.
type Listener interface {
	// OnWriterMatch/OnWriterUnmatch/OnWriterIncompatibleQoS concern a
	// LOCAL writer (named by local) and the REMOTE reader it was
	// checked against.
	OnWriterMatch(local guid.GUID, remote discovery.ReaderProxyData, sel locator.Selector)
	OnWriterUnmatch(local, remote guid.GUID)
	OnWriterIncompatibleQoS(local guid.GUID, remote discovery.ReaderProxyData, reason match.IncompatibleReason)
	// OnReaderMatch/OnReaderUnmatch/OnReaderIncompatibleQoS concern a
	// LOCAL reader and the REMOTE writer it was checked against.
	OnReaderMatch(local guid.GUID, remote discovery.WriterProxyData, sel locator.Selector)
	OnReaderUnmatch(local, remote guid.GUID)
	OnReaderIncompatibleQoS(local guid.GUID, remote discovery.WriterProxyData, reason match.IncompatibleReason)
}

// NopListener ignores every SEDP event.
type NopListener struct{}

func (NopListener) OnWriterMatch(guid.GUID, discovery.ReaderProxyData, locator.Selector)            {}
func (NopListener) OnWriterUnmatch(guid.GUID, guid.GUID)                                            {}
func (NopListener) OnWriterIncompatibleQoS(guid.GUID, discovery.ReaderProxyData, match.IncompatibleReason) {}
func (NopListener) OnReaderMatch(guid.GUID, discovery.WriterProxyData, locator.Selector)             {}
func (NopListener) OnReaderUnmatch(guid.GUID, guid.GUID)                                             {}
func (NopListener) OnReaderIncompatibleQoS(guid.GUID, discovery.WriterProxyData, match.IncompatibleReason) {}

type localWriter struct {
	topic, typeName string
	qos             qos.WriterQoS
}

type localReader struct {
	topic, typeName string
	qos             qos.ReaderQoS
}

// Endpoints runs the four SEDP built-in endpoints for one participant
// and the matching loop over whatever local writers/readers have been
// registered with it.
type Endpoints struct {
	mu sync.Mutex

	selfPrefix guid.Prefix

	pubWriter *endpoint.StatefulWriter // announces local DataWriters
	pubReader *endpoint.StatefulReader // receives remote DataWriter announcements
	subWriter *endpoint.StatefulWriter // announces local DataReaders
	subReader *endpoint.StatefulReader // receives remote DataReader announcements

	localWriters map[guid.GUID]localWriter
	localReaders map[guid.GUID]localReader

	// remoteWriters/remoteReaders is every remote proxy ever announced
	// and not yet withdrawn, so a local endpoint registered after a
	// remote was already discovered is still checked against it
	// (spec.md §4.8 doesn't special-case arrival order).
	remoteWriters map[guid.GUID]discovery.WriterProxyData
	remoteReaders map[guid.GUID]discovery.ReaderProxyData

	// matchedByWriter/matchedByReader remember which remote
	// GUIDs a given local endpoint currently matches, so a later
	// withdrawal or QoS change can be told apart from an unmatch.
	matchedByWriter map[guid.GUID]map[guid.GUID]bool
	matchedByReader map[guid.GUID]map[guid.GUID]bool

	listener Listener
	log      *rtpslog.Logger
}

type readerListener struct {
	e        *Endpoints
	isWriter bool // true: this reader carries remote WriterProxyData; false: remote ReaderProxyData
}

func (l readerListener) OnDataAvailable(c *history.CacheChange) {
	r := cdr.NewReader(c.Payload, cdr.LittleEndian, 0)
	pl, err := plist.Decode(r)
	if err != nil {
		return
	}
	disposed := false
	if p, ok := pl.Get(plist.PIDStatusInfo); ok && len(p.Value) >= 4 {
		info := uint32(p.Value[0]) | uint32(p.Value[1])<<8 | uint32(p.Value[2])<<16 | uint32(p.Value[3])<<24
		disposed = info&discovery.StatusInfoDisposedUnregistered != 0
	}
	if l.isWriter {
		w, ok := discovery.DecodeWriterProxyData(pl)
		if !ok {
			return
		}
		if disposed {
			l.e.onRemoteWriterRemoved(w.GUID)
			return
		}
		l.e.onRemoteWriterAnnounced(w)
		return
	}
	rd, ok := discovery.DecodeReaderProxyData(pl)
	if !ok {
		return
	}
	if disposed {
		l.e.onRemoteReaderRemoved(rd.GUID)
		return
	}
	l.e.onRemoteReaderAnnounced(rd)
}
func (readerListener) OnMatched(guid.GUID)                   {}
func (readerListener) OnUnmatched(guid.GUID)                 {}
func (readerListener) OnLivelinessChanged(guid.GUID, bool) {}

// New constructs the four SEDP built-in endpoints for a participant.
func New(selfPrefix guid.Prefix, sender transport.Sender, listener Listener, log *rtpslog.Logger) *Endpoints {
	if listener == nil {
		listener = NopListener{}
	}
	e := &Endpoints{
		selfPrefix:      selfPrefix,
		localWriters:    make(map[guid.GUID]localWriter),
		localReaders:    make(map[guid.GUID]localReader),
		remoteWriters:   make(map[guid.GUID]discovery.WriterProxyData),
		remoteReaders:   make(map[guid.GUID]discovery.ReaderProxyData),
		matchedByWriter: make(map[guid.GUID]map[guid.GUID]bool),
		matchedByReader: make(map[guid.GUID]map[guid.GUID]bool),
		listener:        listener,
		log:             log,
	}

	pubWriterGUID := guid.GUID{Prefix: selfPrefix, EntityID: guid.EntityIDSEDPPublicationsWriter}
	pubReaderGUID := guid.GUID{Prefix: selfPrefix, EntityID: guid.EntityIDSEDPPublicationsReader}
	subWriterGUID := guid.GUID{Prefix: selfPrefix, EntityID: guid.EntityIDSEDPSubscriptionsWriter}
	subReaderGUID := guid.GUID{Prefix: selfPrefix, EntityID: guid.EntityIDSEDPSubscriptionsReader}

	wqos := qos.DefaultWriterQoS()
	wqos.Durability = qos.TransientLocal
	rqos := qos.DefaultReaderQoS()
	rqos.Durability = qos.TransientLocal

	e.pubWriter = endpoint.NewStatefulWriter(
		endpoint.WriterAttributes{GUID: pubWriterGUID, TopicName: "DCPSPublication", TypeName: "WriterProxyData", QoS: wqos},
		history.New(wqos.History, wqos.ResourceLimits, history.NewPool(history.DynamicReserve, 0)),
		sender, endpoint.NopWriterListener{}, log)
	e.pubReader = endpoint.NewStatefulReader(
		endpoint.ReaderAttributes{GUID: pubReaderGUID, TopicName: "DCPSPublication", TypeName: "WriterProxyData", QoS: rqos},
		history.New(rqos.History, rqos.ResourceLimits, history.NewPool(history.DynamicReserve, 0)),
		sender, readerListener{e: e, isWriter: true}, log)
	e.subWriter = endpoint.NewStatefulWriter(
		endpoint.WriterAttributes{GUID: subWriterGUID, TopicName: "DCPSSubscription", TypeName: "ReaderProxyData", QoS: wqos},
		history.New(wqos.History, wqos.ResourceLimits, history.NewPool(history.DynamicReserve, 0)),
		sender, endpoint.NopWriterListener{}, log)
	e.subReader = endpoint.NewStatefulReader(
		endpoint.ReaderAttributes{GUID: subReaderGUID, TopicName: "DCPSSubscription", TypeName: "ReaderProxyData", QoS: rqos},
		history.New(rqos.History, rqos.ResourceLimits, history.NewPool(history.DynamicReserve, 0)),
		sender, readerListener{e: e, isWriter: false}, log)

	return e
}

// OnParticipantDiscovered wires this participant's four SEDP built-in
// endpoints to the newly-discovered remote's built-in SEDP endpoints
// (spec.md §4.8: SEDP's own endpoints match unconditionally, by
// construction, once both participants know of each other).
func (e *Endpoints) OnParticipantDiscovered(remote discovery.ParticipantProxyData) {
	sel := locator.Selector{Unicast: remote.MetatrafficUnicastLocators, Multicast: remote.MetatrafficMulticastLocators}
	remotePubWriter := guid.GUID{Prefix: remote.GUID.Prefix, EntityID: guid.EntityIDSEDPPublicationsWriter}
	remotePubReader := guid.GUID{Prefix: remote.GUID.Prefix, EntityID: guid.EntityIDSEDPPublicationsReader}
	remoteSubWriter := guid.GUID{Prefix: remote.GUID.Prefix, EntityID: guid.EntityIDSEDPSubscriptionsWriter}
	remoteSubReader := guid.GUID{Prefix: remote.GUID.Prefix, EntityID: guid.EntityIDSEDPSubscriptionsReader}

	e.pubWriter.MatchedReaderAdd(remotePubReader, true, false, 0, sel)
	e.pubReader.MatchedWriterAdd(remotePubWriter, qos.TransientLocal, 0, 0, sel)
	e.subWriter.MatchedReaderAdd(remoteSubReader, true, false, 0, sel)
	e.subReader.MatchedWriterAdd(remoteSubWriter, qos.TransientLocal, 0, 0, sel)
}

// OnParticipantRemoved tears down the SEDP-to-SEDP matches for a
// departed remote and forgets every endpoint it ever announced.
func (e *Endpoints) OnParticipantRemoved(remote guid.GUID) {
	e.pubWriter.MatchedReaderRemove(guid.GUID{Prefix: remote.Prefix, EntityID: guid.EntityIDSEDPPublicationsReader})
	e.pubReader.MatchedWriterRemove(guid.GUID{Prefix: remote.Prefix, EntityID: guid.EntityIDSEDPPublicationsWriter})
	e.subWriter.MatchedReaderRemove(guid.GUID{Prefix: remote.Prefix, EntityID: guid.EntityIDSEDPSubscriptionsReader})
	e.subReader.MatchedWriterRemove(guid.GUID{Prefix: remote.Prefix, EntityID: guid.EntityIDSEDPSubscriptionsWriter})

	e.mu.Lock()
	var toUnmatchW, toUnmatchR []guid.GUID
	for g := range e.matchedByWriter {
		if remoteOwned(e.matchedByWriter[g], remote.Prefix) {
			toUnmatchW = append(toUnmatchW, g)
		}
	}
	for g := range e.matchedByReader {
		if remoteOwned(e.matchedByReader[g], remote.Prefix) {
			toUnmatchR = append(toUnmatchR, g)
		}
	}
	e.mu.Unlock()
	for _, g := range toUnmatchW {
		e.listener.OnWriterUnmatch(g, remote)
	}
	for _, g := range toUnmatchR {
		e.listener.OnReaderUnmatch(g, remote)
	}
}

func remoteOwned(matches map[guid.GUID]bool, prefix guid.Prefix) bool {
	for g := range matches {
		if g.Prefix == prefix {
			return true
		}
	}
	return false
}

// RegisterLocalWriter announces a local DataWriter over SEDP and
// checks it against every remote DataReader already known, not only
// ones announced afterward (spec.md §4.8 states the matching rule, not
// an arrival order).
func (e *Endpoints) RegisterLocalWriter(g guid.GUID, topic, typeName string, q qos.WriterQoS) {
	lw := localWriter{topic: topic, typeName: typeName, qos: q}
	e.mu.Lock()
	e.localWriters[g] = lw
	remotes := make([]discovery.ReaderProxyData, 0, len(e.remoteReaders))
	for _, r := range e.remoteReaders {
		remotes = append(remotes, r)
	}
	e.mu.Unlock()

	wpd := discovery.WriterProxyData{GUID: g, TopicName: topic, TypeName: typeName, QoS: q}
	e.announce(e.pubWriter, wpd.Encode())

	offered := match.Writer(topic, typeName, q)
	for _, remote := range remotes {
		e.tryMatchWriter(g, offered, remote)
	}
}

// RegisterLocalReader announces a local DataReader over SEDP and
// checks it against every remote DataWriter already known.
func (e *Endpoints) RegisterLocalReader(g guid.GUID, topic, typeName string, q qos.ReaderQoS) {
	lr := localReader{topic: topic, typeName: typeName, qos: q}
	e.mu.Lock()
	e.localReaders[g] = lr
	remotes := make([]discovery.WriterProxyData, 0, len(e.remoteWriters))
	for _, w := range e.remoteWriters {
		remotes = append(remotes, w)
	}
	e.mu.Unlock()

	rpd := discovery.ReaderProxyData{GUID: g, TopicName: topic, TypeName: typeName, QoS: q}
	e.announce(e.subWriter, rpd.Encode())

	requested := match.Reader(topic, typeName, q)
	for _, remote := range remotes {
		e.tryMatchReader(g, remote, requested)
	}
}

// UnregisterLocalWriter withdraws a local DataWriter's SEDP
// announcement (spec.md §4.8 "deletions enqueue a DATA with
// status_info = DISPOSED|UNREGISTERED").
func (e *Endpoints) UnregisterLocalWriter(g guid.GUID) {
	e.mu.Lock()
	delete(e.localWriters, g)
	e.mu.Unlock()
	e.announce(e.pubWriter, withdrawal(plist.PIDEndpointGUID, plist.EncodeGUID(g)))
}

// UnregisterLocalReader withdraws a local DataReader's SEDP
// announcement.
func (e *Endpoints) UnregisterLocalReader(g guid.GUID) {
	e.mu.Lock()
	delete(e.localReaders, g)
	e.mu.Unlock()
	e.announce(e.subWriter, withdrawal(plist.PIDEndpointGUID, plist.EncodeGUID(g)))
}

func withdrawal(pid plist.PID, guidBytes []byte) *plist.List {
	l := &plist.List{}
	l.Add(pid, guidBytes)
	status := make([]byte, 4)
	v := discovery.StatusInfoDisposedUnregistered
	status[0], status[1], status[2], status[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	l.Add(plist.PIDStatusInfo, status)
	return l
}

func (e *Endpoints) announce(w *endpoint.StatefulWriter, l *plist.List) {
	cw := cdr.NewWriter(cdr.LittleEndian, 0)
	plist.Encode(cw, l)
	if _, err := w.Write(cw.Bytes()); err != nil && e.log != nil {
		e.log.Warningf("sedp: announce failed: %v", err)
	}
}

func (e *Endpoints) onRemoteWriterAnnounced(remote discovery.WriterProxyData) {
	e.mu.Lock()
	e.remoteWriters[remote.GUID] = remote
	locals := make(map[guid.GUID]localReader, len(e.localReaders))
	for g, lr := range e.localReaders {
		locals[g] = lr
	}
	e.mu.Unlock()

	for g, lr := range locals {
		e.tryMatchReader(g, remote, match.Reader(lr.topic, lr.typeName, lr.qos))
	}
}

func (e *Endpoints) onRemoteReaderAnnounced(remote discovery.ReaderProxyData) {
	e.mu.Lock()
	e.remoteReaders[remote.GUID] = remote
	locals := make(map[guid.GUID]localWriter, len(e.localWriters))
	for g, lw := range e.localWriters {
		locals[g] = lw
	}
	e.mu.Unlock()

	for g, lw := range locals {
		e.tryMatchWriter(g, match.Writer(lw.topic, lw.typeName, lw.qos), remote)
	}
}

// tryMatchReader runs the compatibility check of a single local reader
// against a single remote writer, recording the match or reporting the
// incompatibility.
func (e *Endpoints) tryMatchReader(local guid.GUID, remote discovery.WriterProxyData, requested match.Candidate) {
	sel := locator.Selector{Unicast: remote.UnicastLocators, Multicast: remote.MulticastLocators}
	offered := match.Writer(remote.TopicName, remote.TypeName, remote.QoS)
	ok, reason := match.Check(offered, requested)
	if ok {
		e.recordMatch(e.matchedByReader, local, remote.GUID)
		e.listener.OnReaderMatch(local, remote, sel)
	} else if reason != match.TopicOrType {
		e.listener.OnReaderIncompatibleQoS(local, remote, reason)
	}
}

// tryMatchWriter runs the compatibility check of a single local writer
// against a single remote reader.
func (e *Endpoints) tryMatchWriter(local guid.GUID, offered match.Candidate, remote discovery.ReaderProxyData) {
	sel := locator.Selector{Unicast: remote.UnicastLocators, Multicast: remote.MulticastLocators}
	requested := match.Reader(remote.TopicName, remote.TypeName, remote.QoS)
	ok, reason := match.Check(offered, requested)
	if ok {
		e.recordMatch(e.matchedByWriter, local, remote.GUID)
		e.listener.OnWriterMatch(local, remote, sel)
	} else if reason != match.TopicOrType {
		e.listener.OnWriterIncompatibleQoS(local, remote, reason)
	}
}

func (e *Endpoints) onRemoteWriterRemoved(remote guid.GUID) {
	e.mu.Lock()
	delete(e.remoteWriters, remote)
	var locals []guid.GUID
	for g, m := range e.matchedByReader {
		if m[remote] {
			locals = append(locals, g)
			delete(m, remote)
		}
	}
	e.mu.Unlock()
	for _, g := range locals {
		e.listener.OnReaderUnmatch(g, remote)
	}
}

func (e *Endpoints) onRemoteReaderRemoved(remote guid.GUID) {
	e.mu.Lock()
	delete(e.remoteReaders, remote)
	var locals []guid.GUID
	for g, m := range e.matchedByWriter {
		if m[remote] {
			locals = append(locals, g)
			delete(m, remote)
		}
	}
	e.mu.Unlock()
	for _, g := range locals {
		e.listener.OnWriterUnmatch(g, remote)
	}
}

func (e *Endpoints) recordMatch(table map[guid.GUID]map[guid.GUID]bool, local, remote guid.GUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := table[local]
	if !ok {
		m = make(map[guid.GUID]bool)
		table[local] = m
	}
	m[remote] = true
}

// Stop halts the heartbeat/liveliness background loops of all four
// built-in endpoints and waits for them to exit.
func (e *Endpoints) Stop() {
	e.pubWriter.Halt()
	e.pubReader.Halt()
	e.subWriter.Halt()
	e.subReader.Halt()
	e.pubWriter.Wait()
	e.pubReader.Wait()
	e.subWriter.Wait()
	e.subReader.Wait()
}

// PublicationsReader and SubscriptionsReader expose the two receiving
// built-in endpoints so a participant's message dispatcher can route
// an incoming DATA/HEARTBEAT/GAP submessage to whichever one its
// destination EntityId names (guid.EntityIDSEDPPublicationsReader or
// guid.EntityIDSEDPSubscriptionsReader).
func (e *Endpoints) PublicationsReader() *endpoint.StatefulReader  { return e.pubReader }
func (e *Endpoints) SubscriptionsReader() *endpoint.StatefulReader { return e.subReader }
