// Package pdp implements the Simple Participant Discovery Protocol of
// spec.md §4.7: a participant periodically announces its
// ParticipantProxyData over SPDP's reserved built-in stateless
// writer/reader pair, tracks every remote participant it has heard
// from along with a lease deadline, and notifies a Listener when a
// remote is discovered or its lease expires. The announcement cadence
// and the lease-expiry sweep are both scheduled events on the owning
// participant's shared scheduler.Scheduler rather than dedicated
// goroutine timers.
package pdp

import (
	"sync"
	"time"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/seqnum"
	"github.com/rtps-go/rtps/discovery"
	"github.com/rtps-go/rtps/rtpslog"
	"github.com/rtps-go/rtps/scheduler"
	"github.com/rtps-go/rtps/transport"
	"github.com/rtps-go/rtps/wire/cdr"
	"github.com/rtps-go/rtps/wire/plist"
	"github.com/rtps-go/rtps/wire/submsg"
)

// Default timing (spec.md §4.7): 5 fast announcements 100ms apart,
// then steady-state announcements every lease_duration_announcement_period,
// with a 20s default lease.
const (
	InitialAnnouncementCount  = 5
	InitialAnnouncementPeriod = 100 * time.Millisecond
	DefaultAnnouncementPeriod = 3 * time.Second
	DefaultLeaseDuration      = 20 * time.Second

	leaseCheckPeriod = 1 * time.Second
)

// Listener receives SPDP discovery events.
type Listener interface {
	OnParticipantDiscovered(p discovery.ParticipantProxyData)
	OnParticipantRemoved(guid guid.GUID)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) OnParticipantDiscovered(discovery.ParticipantProxyData) {}
func (NopListener) OnParticipantRemoved(guid.GUID)                        {}

type remoteParticipant struct {
	data          discovery.ParticipantProxyData
	leaseDeadline time.Time
}

// Participant runs SPDP for one local RTPS participant.
type Participant struct {
	mu      sync.Mutex
	self    discovery.ParticipantProxyData
	remotes map[guid.GUID]*remoteParticipant

	announcementPeriod time.Duration
	destinations       []locator.Locator

	sn       uint64
	sender   transport.Sender
	listener Listener
	log      *rtpslog.Logger

	sched       *scheduler.Scheduler
	announceEvt *scheduler.Event
	leaseEvt    *scheduler.Event
}

// New constructs a Participant. destinations is the locator set every
// announcement is sent to; participant.New passes its own default
// unicast locators plus any configured initial peers.
// Incoming SPDP DATA, received on EntityIDSPDPReader over whatever
// transport the caller has bound, is handed to OnData directly: SPDP's
// own remote-tracking table replaces the generic
// endpoint.StatelessReader admit-into-HistoryCache behavior, since what
// SPDP needs per sample is "replace this remote's proxy data and
// refresh its lease", not "retain a history of samples". sched is the
// owning Participant's shared scheduler.Scheduler, which runs both the
// announcement cadence and the lease-expiry sweep as scheduled events
// rather than each on its own goroutine timer.
func New(self discovery.ParticipantProxyData, sender transport.Sender, destinations []locator.Locator, listener Listener, sched *scheduler.Scheduler, log *rtpslog.Logger) *Participant {
	if listener == nil {
		listener = NopListener{}
	}
	return &Participant{
		self:               self,
		remotes:            make(map[guid.GUID]*remoteParticipant),
		announcementPeriod: DefaultAnnouncementPeriod,
		destinations:       destinations,
		sender:             sender,
		listener:           listener,
		sched:              sched,
		log:                log,
	}
}

// Start schedules the initial fast-announcement burst (switching to
// the steady announcementPeriod cadence once it's exhausted) and the
// lease-expiry sweep on the shared scheduler.
func (p *Participant) Start() {
	p.scheduleAnnouncement(0)
	p.mu.Lock()
	p.leaseEvt = p.sched.Every(leaseCheckPeriod, p.sweepExpiredLeases)
	p.mu.Unlock()
}

// Stop cancels both scheduled events.
func (p *Participant) Stop() {
	p.mu.Lock()
	announceEvt, leaseEvt := p.announceEvt, p.leaseEvt
	p.mu.Unlock()
	if announceEvt != nil {
		p.sched.Cancel(announceEvt)
	}
	if leaseEvt != nil {
		p.sched.Cancel(leaseEvt)
	}
}

// scheduleAnnouncement announces once and schedules the next: every
// InitialAnnouncementPeriod for the first InitialAnnouncementCount
// announcements (n counts those already sent), then every
// announcementPeriod forever after.
func (p *Participant) scheduleAnnouncement(n int) {
	p.announce()
	n++
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < InitialAnnouncementCount {
		p.announceEvt = p.sched.After(InitialAnnouncementPeriod, func() { p.scheduleAnnouncement(n) })
		return
	}
	p.announceEvt = p.sched.Every(p.announcementPeriod, p.announce)
}

func (p *Participant) announce() {
	p.mu.Lock()
	p.sn++
	sn := p.sn
	dests := append([]locator.Locator(nil), p.destinations...)
	self := p.self
	p.mu.Unlock()

	w := cdr.NewWriter(cdr.LittleEndian, 0)
	plist.Encode(w, self.Encode())

	data := submsg.Data{
		ReaderID: guid.EntityIDUnknown,
		WriterID: guid.EntityIDSPDPWriter,
		WriterSN: seqnum.SequenceNumber(sn),
		SerializedData: &submsg.SerializedPayload{
			Encapsulation: submsg.EncapPLCDR_LE,
			Data:          w.Bytes(),
		},
	}
	hdr, body := submsg.EncodeData(cdr.LittleEndian, 0, data)
	enc := submsg.NewEncoder(submsg.Header{
		Version:    submsg.Version22,
		Vendor:     submsg.VendorUnknown,
		GuidPrefix: self.GUID.Prefix,
	})
	enc.Append(hdr, body)
	p.sender.Send(enc.Bytes(), dests)
	if p.log != nil {
		p.log.Debugf("spdp: announced sn=%d to %d destination(s)", sn, len(dests))
	}
}

// OnData feeds a received SPDP DATA submessage into the participant
// table, decoding its PL_CDR payload.
func (p *Participant) OnData(writerPrefix guid.Prefix, d submsg.Data) {
	if d.SerializedData == nil {
		return
	}
	r := cdr.NewReader(d.SerializedData.Data, cdr.LittleEndian, 0)
	l, err := plist.Decode(r)
	if err != nil {
		if p.log != nil {
			p.log.Warningf("spdp: malformed DATA from %s: %v", writerPrefix, err)
		}
		return
	}
	remote, ok := discovery.DecodeParticipantProxyData(l)
	if !ok {
		return
	}

	p.mu.Lock()
	if remote.GUID == p.self.GUID {
		p.mu.Unlock()
		return // our own announcement looped back
	}
	_, existed := p.remotes[remote.GUID]
	p.remotes[remote.GUID] = &remoteParticipant{
		data:          remote,
		leaseDeadline: time.Now().Add(remote.LeaseDuration),
	}
	p.mu.Unlock()

	if !existed {
		p.listener.OnParticipantDiscovered(remote)
	}
}

func (p *Participant) sweepExpiredLeases() {
	now := time.Now()
	var expired []guid.GUID

	p.mu.Lock()
	for g, r := range p.remotes {
		if now.After(r.leaseDeadline) {
			expired = append(expired, g)
			delete(p.remotes, g)
		}
	}
	p.mu.Unlock()

	for _, g := range expired {
		if p.log != nil {
			p.log.Infof("spdp: lease expired for %s", g)
		}
		p.listener.OnParticipantRemoved(g)
	}
}

// Remotes returns a snapshot of every currently tracked remote
// participant's proxy data.
func (p *Participant) Remotes() []discovery.ParticipantProxyData {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]discovery.ParticipantProxyData, 0, len(p.remotes))
	for _, r := range p.remotes {
		out = append(out, r.data)
	}
	return out
}

// Forget removes a remote unconditionally, e.g. in response to a
// received participant dispose or an operator's ignore_participant
// call (spec.md §4.7).
func (p *Participant) Forget(g guid.GUID) {
	p.mu.Lock()
	_, ok := p.remotes[g]
	delete(p.remotes, g)
	p.mu.Unlock()
	if ok {
		p.listener.OnParticipantRemoved(g)
	}
}
