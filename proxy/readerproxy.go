// Package proxy implements the per-remote state tables a stateful
// writer keeps for each matched reader (ReaderProxy) and a stateful
// reader keeps for each matched writer (WriterProxy), spec.md §3
// "Per-remote state tables" and §4.4/§4.5. The ordered
// per-sequence-number status set is built on gitlab.com/yawning/avl.git,
// keyed by SequenceNumber instead of a deadline.
package proxy

import (
	"sort"
	"sync"
	"time"

	"gitlab.com/yawning/avl.git"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/seqnum"
)

// ChangeForReaderStatus is a ReaderProxy entry's delivery state
// (spec.md §4.4).
type ChangeForReaderStatus int

const (
	Unsent ChangeForReaderStatus = iota
	Unacknowledged
	Requested
	Acknowledged
	Underway
)

func (s ChangeForReaderStatus) String() string {
	switch s {
	case Unsent:
		return "UNSENT"
	case Unacknowledged:
		return "UNACKNOWLEDGED"
	case Requested:
		return "REQUESTED"
	case Acknowledged:
		return "ACKNOWLEDGED"
	case Underway:
		return "UNDERWAY"
	default:
		return "UNKNOWN"
	}
}

func seqCompare(a, b interface{}) int {
	sa, sb := a.(*readerProxyEntry).seq, b.(*readerProxyEntry).seq
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

type readerProxyEntry struct {
	seq           seqnum.SequenceNumber
	status        ChangeForReaderStatus
	sentFragments map[uint32]bool // fragment number -> sent; nil if unfragmented
	sentAt        time.Time       // when MarkSent last ran, for the keep_duration implicit-ack timer
	node          *avl.Node
}

// ReaderProxy is a stateful writer's per-matched-reader state (spec.md
// §3, §4.4).
type ReaderProxy struct {
	mu sync.Mutex

	GUID              guid.GUID
	Reliable          bool
	ExpectsInlineQoS  bool
	OwnershipStrength int32
	Locators          locator.Selector

	// DisablePositiveACKs and DisableACKsKeepDuration mirror the
	// matched reader's requested Reliability policy (PID_DISABLE_POSITIVE_ACKS):
	// when set, an UNACKNOWLEDGED entry older than keep_duration is
	// treated as ACKNOWLEDGED without ever receiving an ACKNACK for it.
	DisablePositiveACKs     bool
	DisableACKsKeepDuration time.Duration

	entries map[seqnum.SequenceNumber]*readerProxyEntry
	order   *avl.Tree

	// ChangesLowMark: every sequence number at or below this value is
	// implicitly ACKNOWLEDGED and need not be stored (spec.md §3
	// "compress contiguous runs ... around low_mark").
	ChangesLowMark seqnum.SequenceNumber

	LastAckNackCount  uint32
	LastNackFragCount uint32

	// nackSuppressUntil tracks, per sequence number, when a just-sent
	// DATA stops suppressing spurious ACKNACKs (spec.md §4.4
	// "Nack-suppression").
	nackSuppressUntil map[seqnum.SequenceNumber]time.Time
}

// NewReaderProxy constructs a ReaderProxy with changes_low_mark set to
// lowMark (the writer's min sequence number at match time, per
// Durability rules in spec.md §4.4).
func NewReaderProxy(g guid.GUID, reliable bool, lowMark seqnum.SequenceNumber) *ReaderProxy {
	return &ReaderProxy{
		GUID:              g,
		Reliable:          reliable,
		entries:           make(map[seqnum.SequenceNumber]*readerProxyEntry),
		order:             avl.New(seqCompare),
		ChangesLowMark:    lowMark,
		nackSuppressUntil: make(map[seqnum.SequenceNumber]time.Time),
	}
}

// AddChange inserts seq in state UNSENT (spec.md §4.4 "add_change").
// No-op if seq is already at or below ChangesLowMark.
func (p *ReaderProxy) AddChange(seq seqnum.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.ChangesLowMark {
		return
	}
	if _, ok := p.entries[seq]; ok {
		return
	}
	e := &readerProxyEntry{seq: seq, status: Unsent}
	e.node = p.order.Insert(e)
	p.entries[seq] = e
}

// MarkSent transitions seq to UNACKNOWLEDGED, starts its
// nack-suppression window, and (if DisablePositiveACKs is set) starts
// its keep_duration implicit-ack clock.
func (p *ReaderProxy) MarkSent(seq seqnum.SequenceNumber, nackSuppressionDuration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[seq]
	if !ok {
		return
	}
	e.status = Unacknowledged
	e.sentAt = time.Now()
	p.nackSuppressUntil[seq] = time.Now().Add(nackSuppressionDuration)
}

// expireImplicitAcksLocked folds every UNACKNOWLEDGED entry whose
// keep_duration has elapsed into ACKNOWLEDGED, implementing
// DisablePositiveACKs (spec.md §12): this writer stops waiting for an
// ACKNACK that the reader has been told never to send for a
// nothing-missing heartbeat.
func (p *ReaderProxy) expireImplicitAcksLocked(now time.Time) {
	if !p.DisablePositiveACKs || p.DisableACKsKeepDuration <= 0 {
		return
	}
	for _, e := range p.entries {
		if e.status == Unacknowledged && !e.sentAt.IsZero() && now.Sub(e.sentAt) >= p.DisableACKsKeepDuration {
			p.acknowledgeLocked(e)
		}
	}
	p.advanceLowMarkLocked()
}

// ApplyAckNack applies a reader's SequenceNumberSet to this proxy's
// entries (spec.md §4.4 "ACKNACK received with bitmap"): sequence
// numbers below the set's base are ACKNOWLEDGED and advance
// ChangesLowMark; bits set in the bitmap become REQUESTED (unless
// still nack-suppressed); bits clear above base remain
// UNACKNOWLEDGED.
func (p *ReaderProxy) ApplyAckNack(set *seqnum.SequenceNumberSet, count uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count <= p.LastAckNackCount && p.LastAckNackCount != 0 {
		return // stale/duplicate ACKNACK, per RTPS count monotonicity
	}
	p.LastAckNackCount = count

	now := time.Now()
	for seq, e := range p.entries {
		if seq < set.Base {
			p.acknowledgeLocked(e)
			continue
		}
		if set.Contains(seq) {
			if until, ok := p.nackSuppressUntil[seq]; ok && now.Before(until) {
				continue
			}
			e.status = Requested
		}
	}
	p.advanceLowMarkLocked()
}

func (p *ReaderProxy) acknowledgeLocked(e *readerProxyEntry) {
	e.status = Acknowledged
}

// advanceLowMarkLocked removes the contiguous run of ACKNOWLEDGED
// entries starting just above the current low mark, folding them into
// it (spec.md §3 "compress contiguous runs").
func (p *ReaderProxy) advanceLowMarkLocked() {
	for {
		next := p.ChangesLowMark + 1
		e, ok := p.entries[next]
		if !ok || e.status != Acknowledged {
			return
		}
		p.order.Remove(e.node)
		delete(p.entries, next)
		p.ChangesLowMark = next
	}
}

// Remove drops seq from all tracking (spec.md §4.4 "change removed"),
// possibly advancing the low mark if seq was at its boundary.
func (p *ReaderProxy) Remove(seq seqnum.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[seq]
	if !ok {
		return
	}
	p.order.Remove(e.node)
	delete(p.entries, seq)
	delete(p.nackSuppressUntil, seq)
	if seq == p.ChangesLowMark+1 {
		p.ChangesLowMark = seq
		p.advanceLowMarkLocked()
	}
}

// RequestFragment marks fragment n of seq REQUESTED (spec.md §4.4
// "NACKFRAG received").
func (p *ReaderProxy) RequestFragment(seq seqnum.SequenceNumber, n uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[seq]
	if !ok {
		return
	}
	if e.sentFragments == nil {
		e.sentFragments = make(map[uint32]bool)
	}
	e.sentFragments[n] = false
	e.status = Requested
}

// FragmentsTracked reports whether seq has ever had its fragments
// individually recorded (via MarkFragmentSent), i.e. whether this is
// not the first transmission attempt for a fragmented sample.
func (p *ReaderProxy) FragmentsTracked(seq seqnum.SequenceNumber) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[seq]
	return ok && e.sentFragments != nil
}

// RequestedFragments returns, in ascending order, every fragment number
// of seq not yet marked sent — either because it was just NACKFRAGed
// (spec.md §4.4 "NACKFRAG triggers per-fragment retransmission") or
// because it was never sent in the first place. Only meaningful once
// FragmentsTracked(seq) is true.
func (p *ReaderProxy) RequestedFragments(seq seqnum.SequenceNumber) []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[seq]
	if !ok || e.sentFragments == nil {
		return nil
	}
	var out []uint32
	for n, sent := range e.sentFragments {
		if !sent {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarkFragmentSent records fragment n of seq as delivered to this
// reader, initializing per-fragment tracking on first use.
func (p *ReaderProxy) MarkFragmentSent(seq seqnum.SequenceNumber, n uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[seq]
	if !ok {
		return
	}
	if e.sentFragments == nil {
		e.sentFragments = make(map[uint32]bool)
	}
	e.sentFragments[n] = true
}

// Unsent returns, in increasing sequence-number order, every entry
// currently UNSENT or REQUESTED (both need (re)transmission).
func (p *ReaderProxy) Unsent() []seqnum.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []seqnum.SequenceNumber
	iter := p.order.Iterator(avl.Forward)
	for node := iter.First(); node != nil; node = iter.Next() {
		e := node.Value.(*readerProxyEntry)
		if e.status == Unsent || e.status == Requested {
			out = append(out, e.seq)
		}
	}
	return out
}

// Status returns the current status of seq, treating anything at or
// below ChangesLowMark as implicitly ACKNOWLEDGED.
func (p *ReaderProxy) Status(seq seqnum.SequenceNumber) ChangeForReaderStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expireImplicitAcksLocked(time.Now())
	if seq <= p.ChangesLowMark {
		return Acknowledged
	}
	e, ok := p.entries[seq]
	if !ok {
		return Acknowledged
	}
	return e.status
}

// AllAcknowledged reports whether every tracked entry is ACKNOWLEDGED,
// used by `wait_for_all_acked` and to decide the HEARTBEAT F-flag.
func (p *ReaderProxy) AllAcknowledged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expireImplicitAcksLocked(time.Now())
	for _, e := range p.entries {
		if e.status != Acknowledged {
			return false
		}
	}
	return true
}
