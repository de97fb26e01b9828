// Package history implements the HistoryCache and CacheChange types
// shared by writer and reader endpoints (spec.md §3 "CacheChange",
// "HistoryCache", §4.2).
package history

import (
	"time"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/seqnum"
)

// ChangeKind distinguishes a live sample from the instance-lifecycle
// markers carried by DATA's inline StatusInfo (spec.md §3).
type ChangeKind int

const (
	Alive ChangeKind = iota
	NotAliveDisposed
	NotAliveUnregistered
	NotAliveDisposedUnregistered
)

func (k ChangeKind) String() string {
	switch k {
	case Alive:
		return "ALIVE"
	case NotAliveDisposed:
		return "NOT_ALIVE_DISPOSED"
	case NotAliveUnregistered:
		return "NOT_ALIVE_UNREGISTERED"
	case NotAliveDisposedUnregistered:
		return "NOT_ALIVE_DISPOSED_UNREGISTERED"
	default:
		return "UNKNOWN"
	}
}

// InstanceHandle is the key hash identifying a WITH_KEY topic's
// instance; zero value for NO_KEY topics (the whole history is one
// instance).
type InstanceHandle [16]byte

// FragmentState tracks reassembly progress of one CacheChange's
// payload (spec.md §3 "fragments", §4.6).
type FragmentState struct {
	FragmentSize uint32
	Present      []bool // len == number of fragments; true once received
}

// Complete reports whether every fragment has been received.
func (f *FragmentState) Complete() bool {
	if f == nil {
		return true
	}
	for _, p := range f.Present {
		if !p {
			return false
		}
	}
	return true
}

// CacheChange is the elementary unit stored in a HistoryCache (spec.md
// §3 "CacheChange"). Kind, WriterGUID, InstanceHandle, SequenceNumber
// and SourceTimestamp are immutable once created; Payload and
// Fragments mutate only while a DATA_FRAG reassembly is in progress.
type CacheChange struct {
	Kind            ChangeKind
	WriterGUID      guid.GUID
	InstanceHandle  InstanceHandle
	SequenceNumber  seqnum.SequenceNumber
	Payload         []byte
	SourceTimestamp time.Time
	Fragments       *FragmentState
}

// Complete reports whether the change is ready to be delivered to
// readers/applications (spec.md §3: "Only complete changes are made
// visible").
func (c *CacheChange) Complete() bool {
	return c.Fragments.Complete()
}
