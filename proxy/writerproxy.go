package proxy

import (
	"sync"
	"time"

	"gitlab.com/yawning/avl.git"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/core/seqnum"
)

// ChangeFromWriterStatus is a WriterProxy entry's receipt state
// (spec.md §4.5).
type ChangeFromWriterStatus int

const (
	StatusUnknown ChangeFromWriterStatus = iota
	Missing
	Received
	Lost
)

func (s ChangeFromWriterStatus) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case Missing:
		return "MISSING"
	case Received:
		return "RECEIVED"
	case Lost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

type writerProxyEntry struct {
	seq    seqnum.SequenceNumber
	status ChangeFromWriterStatus
	node   *avl.Node
}

func writerSeqCompare(a, b interface{}) int {
	sa, sb := a.(*writerProxyEntry).seq, b.(*writerProxyEntry).seq
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

// WriterProxy is a stateful reader's per-matched-writer state
// (spec.md §3, §4.5).
type WriterProxy struct {
	mu sync.Mutex

	GUID              guid.GUID
	Durability        qos.DurabilityKind
	OwnershipStrength int32
	Locators          locator.Selector

	entries map[seqnum.SequenceNumber]*writerProxyEntry
	order   *avl.Tree

	// ChangesLowMark: sequence numbers at or below this are resolved
	// (RECEIVED-and-delivered or LOST) and need not be stored.
	ChangesLowMark seqnum.SequenceNumber

	LastHeartbeatCount uint32
	HeartbeatFinalFlag bool

	// LastNotified is the highest sequence number delivered to the
	// HistoryCache in order (spec.md §4.5 "last_notified").
	LastNotified seqnum.SequenceNumber

	IsAlive       bool
	LeaseDeadline time.Time
}

// NewWriterProxy constructs a WriterProxy.
func NewWriterProxy(g guid.GUID, durability qos.DurabilityKind) *WriterProxy {
	return &WriterProxy{
		GUID:           g,
		Durability:     durability,
		entries:        make(map[seqnum.SequenceNumber]*writerProxyEntry),
		order:          avl.New(writerSeqCompare),
		ChangesLowMark: seqnum.First - 1,
		LastNotified:   seqnum.Unknown,
		IsAlive:        true,
	}
}

func (p *WriterProxy) entryLocked(seq seqnum.SequenceNumber) *writerProxyEntry {
	e, ok := p.entries[seq]
	if ok {
		return e
	}
	e = &writerProxyEntry{seq: seq, status: StatusUnknown}
	e.node = p.order.Insert(e)
	p.entries[seq] = e
	return e
}

// ApplyHeartbeat records a HEARTBEAT's [firstSN, lastSN] range
// (spec.md §4.5): sequence numbers below firstSN are LOST, sequence
// numbers in range not yet RECEIVED become MISSING.
func (p *WriterProxy) ApplyHeartbeat(firstSN, lastSN seqnum.SequenceNumber, count uint32, final bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count <= p.LastHeartbeatCount && p.LastHeartbeatCount != 0 {
		return
	}
	p.LastHeartbeatCount = count
	p.HeartbeatFinalFlag = final

	start := p.ChangesLowMark + 1
	if start < seqnum.First {
		start = seqnum.First
	}
	for seq := start; seq < firstSN; seq++ {
		e := p.entryLocked(seq)
		if e.status != Received {
			e.status = Lost
		}
	}
	for seq := firstSN; seq <= lastSN; seq++ {
		e := p.entryLocked(seq)
		if e.status == StatusUnknown {
			e.status = Missing
		}
	}
	p.advanceLowMarkAndNotifyLocked()
}

// ApplyData marks seq RECEIVED (spec.md §4.5 "DATA(seq): Insert
// CacheChange RECEIVED; advance last_notified if contiguous").
// Returns true if seq should be delivered to the HistoryCache (it was
// not already resolved as LOST/RECEIVED).
func (p *WriterProxy) ApplyData(seq seqnum.SequenceNumber) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.ChangesLowMark {
		return false
	}
	e := p.entryLocked(seq)
	if e.status == Received {
		return false
	}
	e.status = Received
	p.advanceLowMarkAndNotifyLocked()
	return true
}

// ApplyGap marks every sequence number in [gapStart, gapList-covered]
// LOST (spec.md §4.5, GAP handling).
func (p *WriterProxy) ApplyGap(gapStart seqnum.SequenceNumber, gapList *seqnum.SequenceNumberSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for seq := gapStart; seq < gapList.Base; seq++ {
		e := p.entryLocked(seq)
		if e.status != Received {
			e.status = Lost
		}
	}
	gapList.Each(func(seq seqnum.SequenceNumber) {
		e := p.entryLocked(seq)
		if e.status != Received {
			e.status = Lost
		}
	})
	p.advanceLowMarkAndNotifyLocked()
}

// advanceLowMarkAndNotifyLocked folds the contiguous run of
// RECEIVED/LOST entries above ChangesLowMark into it, advancing
// LastNotified for each RECEIVED entry in order (spec.md §4.5:
// "out-of-order RECEIVED entries wait for predecessors to reach
// RECEIVED/LOST before last_notified advances").
func (p *WriterProxy) advanceLowMarkAndNotifyLocked() {
	for {
		next := p.ChangesLowMark + 1
		e, ok := p.entries[next]
		if !ok || (e.status != Received && e.status != Lost) {
			return
		}
		if e.status == Received {
			p.LastNotified = next
		}
		p.order.Remove(e.node)
		delete(p.entries, next)
		p.ChangesLowMark = next
	}
}

// MissingAndRequested returns the sequence numbers currently MISSING,
// used to build the reader's ACKNACK bitmap.
func (p *WriterProxy) MissingAndRequested() []seqnum.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []seqnum.SequenceNumber
	iter := p.order.Iterator(avl.Forward)
	for node := iter.First(); node != nil; node = iter.Next() {
		e := node.Value.(*writerProxyEntry)
		if e.status == Missing {
			out = append(out, e.seq)
		}
	}
	return out
}

// Status reports the status of seq, treating anything at or below
// ChangesLowMark as RECEIVED (already resolved and delivered or lost).
func (p *WriterProxy) Status(seq seqnum.SequenceNumber) ChangeFromWriterStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.ChangesLowMark {
		return Received
	}
	e, ok := p.entries[seq]
	if !ok {
		return StatusUnknown
	}
	return e.status
}

// ExpireIfLeaseElapsed reports whether now is past LeaseDeadline and
// the proxy was still considered alive, transitioning it to not-alive
// in that case (spec.md §4.5 "Liveliness on the reader": "a matched
// writer whose lease has elapsed is reported not-alive").
func (p *WriterProxy) ExpireIfLeaseElapsed(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.IsAlive && now.After(p.LeaseDeadline) {
		p.IsAlive = false
		return true
	}
	return false
}

// RefreshLease resets LeaseDeadline on receipt of any RTPS message
// from the writer's participant (spec.md §3 ParticipantProxyData:
// "Lease is refreshed on any received RTPS message from the peer").
func (p *WriterProxy) RefreshLease(leaseDuration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.IsAlive = true
	p.LeaseDeadline = time.Now().Add(leaseDuration)
}
