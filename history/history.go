package history

import (
	"sort"
	"sync"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/core/seqnum"
	"github.com/rtps-go/rtps/rtpserrors"
)

// changeKey identifies a CacheChange by (writer_guid, sequence_number),
// the identity spec.md §3 invariant I2 ("no two CacheChanges with the
// same (writer_guid, sequence_number) coexist") is stated over. A
// writer's own HistoryCache only ever holds its own GUID, yet the
// API below takes an explicit writer GUID on both sides; a
// reader's HistoryCache holds one CacheChange stream per matched
// writer, and the same sequence number routinely recurs across
// writers since each writer's sequence space starts at 1
// independently.
type changeKey struct {
	writer guid.GUID
	seq    seqnum.SequenceNumber
}

func (k changeKey) less(other changeKey) bool {
	if k.writer != other.writer {
		a := string(k.writer.Prefix[:]) + string(k.writer.EntityID[:])
		b := string(other.writer.Prefix[:]) + string(other.writer.EntityID[:])
		return a < b
	}
	return k.seq < other.seq
}

// HistoryCache is an ordered container of CacheChanges for a single
// endpoint, governed by History QoS and ResourceLimits (spec.md §4.2).
// Callers must hold the owning endpoint's lock; HistoryCache performs
// no locking of its own for the fast add/get/iterate path, matching
// spec.md §5's "Shared-resource policy" (owned by the endpoint, no
// independent lock). Pool access is internally synchronized since
// Reserve/Release may be called without the endpoint lock held by
// application code assembling a payload before `write`.
type HistoryCache struct {
	poolMu sync.Mutex
	pool   *Pool

	history qos.History
	limits  qos.ResourceLimits

	// order holds keys in strictly increasing (writer, seq) order.
	order   []changeKey
	changes map[changeKey]*CacheChange

	// perInstance tracks, for KEEP_LAST eviction, the keys of ALIVE
	// changes belonging to each instance, oldest first.
	perInstance map[InstanceHandle][]changeKey

	// OnRemove is invoked, if set, for every change evicted or
	// explicitly removed, so that per-remote state tables can advance
	// their low-water marks (spec.md §3 invariant I3).
	OnRemove func(writer guid.GUID, seq seqnum.SequenceNumber)
}

// New constructs a HistoryCache under the given History/ResourceLimits
// QoS and payload pool.
func New(h qos.History, limits qos.ResourceLimits, pool *Pool) *HistoryCache {
	return &HistoryCache{
		pool:        pool,
		history:     h,
		limits:      limits,
		changes:     make(map[changeKey]*CacheChange),
		perInstance: make(map[InstanceHandle][]changeKey),
	}
}

// ReserveCache allocates a payload buffer of the given size.
func (hc *HistoryCache) ReserveCache(size int) ([]byte, error) {
	hc.poolMu.Lock()
	defer hc.poolMu.Unlock()
	return hc.pool.Reserve(size)
}

// ReleaseCache returns a payload buffer previously obtained from
// ReserveCache.
func (hc *HistoryCache) ReleaseCache(buf []byte) {
	hc.poolMu.Lock()
	defer hc.poolMu.Unlock()
	hc.pool.Release(buf)
}

// TryAdd inserts change, applying History/ResourceLimits admission
// control (spec.md §4.2). Under KEEP_ALL it returns a
// *rtpserrors.BufferFullError if the cache is already at its resource
// limit; the caller (writer-side `write`, or the reader dropping the
// sample) decides how to react. Under KEEP_LAST a successful add may
// evict the oldest ALIVE change for the same instance, invoking
// OnRemove for it.
func (hc *HistoryCache) TryAdd(c *CacheChange) error {
	key := changeKey{c.WriterGUID, c.SequenceNumber}
	if _, exists := hc.changes[key]; exists {
		return rtpserrors.ErrDuplicate
	}

	switch hc.history.Kind {
	case qos.KeepAll:
		if hc.limits.MaxSamples > 0 && len(hc.changes) >= hc.limits.MaxSamples {
			return rtpserrors.NewBufferFullError("at max_samples=%d", hc.limits.MaxSamples)
		}
		if hc.limits.MaxSamplesPerInstance > 0 {
			if n := len(hc.perInstance[c.InstanceHandle]); n >= hc.limits.MaxSamplesPerInstance {
				return rtpserrors.NewBufferFullError("instance at max_samples_per_instance=%d", hc.limits.MaxSamplesPerInstance)
			}
		}
		hc.insert(key, c)
	case qos.KeepLast:
		hc.insert(key, c)
		if c.Kind == Alive {
			hc.evictKeepLast(c.InstanceHandle)
		}
	}
	return nil
}

func (hc *HistoryCache) insert(key changeKey, c *CacheChange) {
	hc.changes[key] = c
	idx := sort.Search(len(hc.order), func(i int) bool { return !hc.order[i].less(key) })
	hc.order = append(hc.order, changeKey{})
	copy(hc.order[idx+1:], hc.order[idx:])
	hc.order[idx] = key
	if c.Kind == Alive {
		hc.perInstance[c.InstanceHandle] = append(hc.perInstance[c.InstanceHandle], key)
	}
}

func (hc *HistoryCache) evictKeepLast(inst InstanceHandle) {
	depth := hc.history.Depth
	if depth <= 0 {
		return
	}
	keys := hc.perInstance[inst]
	for len(keys) > depth {
		oldest := keys[0]
		keys = keys[1:]
		hc.removeLocked(oldest)
	}
	hc.perInstance[inst] = keys
}

// Remove deletes the change at seq for the given writer, if present,
// notifying OnRemove.
func (hc *HistoryCache) Remove(writer guid.GUID, seq seqnum.SequenceNumber) bool {
	key := changeKey{writer, seq}
	if _, ok := hc.changes[key]; !ok {
		return false
	}
	hc.removeLocked(key)
	return true
}

func (hc *HistoryCache) removeLocked(key changeKey) {
	c, ok := hc.changes[key]
	if !ok {
		return
	}
	delete(hc.changes, key)
	idx := sort.Search(len(hc.order), func(i int) bool { return !hc.order[i].less(key) })
	if idx < len(hc.order) && hc.order[idx] == key {
		hc.order = append(hc.order[:idx], hc.order[idx+1:]...)
	}
	if c.Kind == Alive {
		keys := hc.perInstance[c.InstanceHandle]
		for i, k := range keys {
			if k == key {
				hc.perInstance[c.InstanceHandle] = append(keys[:i], keys[i+1:]...)
				break
			}
		}
	}
	if hc.OnRemove != nil {
		hc.OnRemove(key.writer, key.seq)
	}
}

// Get returns the change at seq for the given writer, if present.
func (hc *HistoryCache) Get(writer guid.GUID, seq seqnum.SequenceNumber) (*CacheChange, bool) {
	c, ok := hc.changes[changeKey{writer, seq}]
	return c, ok
}

// IterFrom returns every change belonging to writer with
// sequence_number >= seq, in increasing order.
func (hc *HistoryCache) IterFrom(writer guid.GUID, seq seqnum.SequenceNumber) []*CacheChange {
	start := changeKey{writer, seq}
	idx := sort.Search(len(hc.order), func(i int) bool { return !hc.order[i].less(start) })
	out := make([]*CacheChange, 0, len(hc.order)-idx)
	for _, k := range hc.order[idx:] {
		if k.writer != writer {
			break
		}
		out = append(out, hc.changes[k])
	}
	return out
}

// MinSeq returns the lowest sequence number present for writer, or
// seqnum.Unknown if it has no changes in the cache.
func (hc *HistoryCache) MinSeq(writer guid.GUID) seqnum.SequenceNumber {
	start := changeKey{writer, seqnum.First}
	idx := sort.Search(len(hc.order), func(i int) bool { return !hc.order[i].less(start) })
	if idx >= len(hc.order) || hc.order[idx].writer != writer {
		return seqnum.Unknown
	}
	return hc.order[idx].seq
}

// MaxSeq returns the highest sequence number present for writer, or
// seqnum.Unknown if it has no changes in the cache. Keys for a given
// writer are contiguous in hc.order (sorted by writer, then seq), so
// the last one is found just before the first key belonging to a
// lexicographically later writer.
func (hc *HistoryCache) MaxSeq(writer guid.GUID) seqnum.SequenceNumber {
	start := changeKey{writer, seqnum.First}
	idx := sort.Search(len(hc.order), func(i int) bool { return !hc.order[i].less(start) })
	if idx >= len(hc.order) || hc.order[idx].writer != writer {
		return seqnum.Unknown
	}
	last := idx
	for last+1 < len(hc.order) && hc.order[last+1].writer == writer {
		last++
	}
	return hc.order[last].seq
}

// Len reports the number of changes currently stored.
func (hc *HistoryCache) Len() int { return len(hc.changes) }
