// Package fragment implements FragmentedChangePitStop, the reader-side
// reassembly store for DATA_FRAG submessages (spec.md §4.6). No
// available dependency implements a capacity-bounded LRU of in-flight
// reassembly buffers, so the eviction list here is built on the
// standard library's container/list — see DESIGN.md.
package fragment

import (
	"container/list"
	"sync"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/seqnum"
	"github.com/rtps-go/rtps/history"
)

// Key identifies one in-flight reassembly.
type Key struct {
	WriterGUID     guid.GUID
	SequenceNumber seqnum.SequenceNumber
}

type entry struct {
	key          Key
	change       *history.CacheChange
	fragmentSize uint32
	lruElem      *list.Element
}

// PitStop is the reader-side fragment reassembly store (spec.md §4.6).
type PitStop struct {
	mu       sync.Mutex
	capacity int
	entries  map[Key]*entry
	lru      *list.List // front = most recently touched
}

// NewPitStop constructs a PitStop holding at most capacity in-flight
// reassemblies before evicting the least-recently-touched one.
func NewPitStop(capacity int) *PitStop {
	return &PitStop{
		capacity: capacity,
		entries:  make(map[Key]*entry),
		lru:      list.New(),
	}
}

// Start begins reassembly for key, allocating a payload buffer of
// sampleSize and marking all fragments NOT_PRESENT (spec.md §4.6: "On
// first DATA_FRAG for a key, allocate a payload buffer of sample_size
// ... memorize fragment_size"). No-op if key is already in progress.
func (ps *PitStop) Start(key Key, writerGUID guid.GUID, sampleSize, fragmentSize uint32, fragmentCount int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.entries[key]; ok {
		return
	}
	c := &history.CacheChange{
		Kind:           history.Alive,
		WriterGUID:     writerGUID,
		SequenceNumber: key.SequenceNumber,
		Payload:        make([]byte, sampleSize),
		Fragments: &history.FragmentState{
			FragmentSize: fragmentSize,
			Present:      make([]bool, fragmentCount),
		},
	}
	e := &entry{key: key, change: c, fragmentSize: fragmentSize}
	e.lruElem = ps.lru.PushFront(e)
	ps.entries[key] = e
	ps.evictIfOverCapacityLocked()
}

// ApplyFragment copies data into the fragment numbered fragmentNum
// (1-based) of key's reassembly buffer, marking it PRESENT. Returns
// the completed CacheChange and true once every fragment is present.
func (ps *PitStop) ApplyFragment(key Key, fragmentNum uint32, data []byte) (*history.CacheChange, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	e, ok := ps.entries[key]
	if !ok {
		return nil, false
	}
	ps.lru.MoveToFront(e.lruElem)

	idx := int(fragmentNum) - 1
	if idx < 0 || idx >= len(e.change.Fragments.Present) {
		return nil, false
	}
	offset := idx * int(e.fragmentSize)
	if offset+len(data) > len(e.change.Payload) {
		return nil, false
	}
	copy(e.change.Payload[offset:], data)
	e.change.Fragments.Present[idx] = true

	if !e.change.Complete() {
		return nil, false
	}
	delete(ps.entries, key)
	ps.lru.Remove(e.lruElem)
	return e.change, true
}

// MissingFragments returns the 1-based fragment numbers not yet
// present for key's in-progress reassembly, used to build a NACKFRAG
// (spec.md §4.6). The second return is false if key has no in-progress
// reassembly (already completed, dropped, or never started).
func (ps *PitStop) MissingFragments(key Key) ([]uint32, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	e, ok := ps.entries[key]
	if !ok {
		return nil, false
	}
	var out []uint32
	for i, present := range e.change.Fragments.Present {
		if !present {
			out = append(out, uint32(i+1))
		}
	}
	return out, true
}

// Drop removes key's in-progress reassembly without completing it
// (spec.md §4.6: "Dropped on unmatch, on GAP covering the sequence
// number").
func (ps *PitStop) Drop(key Key) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	e, ok := ps.entries[key]
	if !ok {
		return
	}
	delete(ps.entries, key)
	ps.lru.Remove(e.lruElem)
}

// DropWriter removes every in-progress reassembly for writerGUID
// (spec.md §4.6: "Dropped on unmatch").
func (ps *PitStop) DropWriter(writerGUID guid.GUID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for key, e := range ps.entries {
		if key.WriterGUID == writerGUID {
			delete(ps.entries, key)
			ps.lru.Remove(e.lruElem)
		}
	}
}

// evictIfOverCapacityLocked drops the least-recently-touched
// reassembly when the pit stop is at capacity (spec.md §4.6: "evicted
// by LRU when the pit stop is at capacity").
func (ps *PitStop) evictIfOverCapacityLocked() {
	if ps.capacity <= 0 {
		return
	}
	for len(ps.entries) > ps.capacity {
		oldest := ps.lru.Back()
		if oldest == nil {
			return
		}
		e := oldest.Value.(*entry)
		ps.lru.Remove(oldest)
		delete(ps.entries, e.key)
	}
}

// Len reports the number of in-flight reassemblies.
func (ps *PitStop) Len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.entries)
}
