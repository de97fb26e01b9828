package history

import "fmt"

// PoolPolicy selects how a HistoryCache's payload buffers are
// allocated, implementing spec.md §9's "Smart-pointer payload pools"
// redesign note with four allocation strategies: preallocated fixed
// size, preallocated with realloc-on-overflow, dynamic-reserve, and
// dynamic-reusable.
type PoolPolicy int

const (
	// Preallocated pre-sizes every buffer to a fixed payload size
	// chosen at construction; Reserve fails if asked for more.
	Preallocated PoolPolicy = iota
	// PreallocatedWithRealloc starts at a fixed size but grows a
	// buffer (and keeps the larger capacity) when a bigger payload is
	// requested.
	PreallocatedWithRealloc
	// DynamicReserve allocates exactly the requested size each time
	// and never reuses released buffers.
	DynamicReserve
	// DynamicReusable keeps a free list of released buffers, reusing
	// the first one large enough before allocating new.
	DynamicReusable
)

// Pool hands out and reclaims payload buffers for a HistoryCache,
// implementing spec.md §4.2's `reserve_cache`/`release_cache`.
type Pool struct {
	policy      PoolPolicy
	payloadSize int
	free        [][]byte
}

// NewPool constructs a Pool under the given policy. payloadSize is the
// fixed size for Preallocated/PreallocatedWithRealloc policies; it is
// ignored by the Dynamic* policies.
func NewPool(policy PoolPolicy, payloadSize int) *Pool {
	return &Pool{policy: policy, payloadSize: payloadSize}
}

// Reserve returns a buffer of at least size bytes.
func (p *Pool) Reserve(size int) ([]byte, error) {
	switch p.policy {
	case Preallocated:
		if size > p.payloadSize {
			return nil, fmt.Errorf("history: payload of %d bytes exceeds preallocated size %d", size, p.payloadSize)
		}
		return make([]byte, size, p.payloadSize), nil
	case PreallocatedWithRealloc:
		if size > p.payloadSize {
			p.payloadSize = size
		}
		return make([]byte, size, p.payloadSize), nil
	case DynamicReusable:
		for i, buf := range p.free {
			if cap(buf) >= size {
				p.free = append(p.free[:i], p.free[i+1:]...)
				return buf[:size], nil
			}
		}
		return make([]byte, size), nil
	default: // DynamicReserve
		return make([]byte, size), nil
	}
}

// Release returns buf to the pool, where the policy permits reuse.
func (p *Pool) Release(buf []byte) {
	if p.policy == DynamicReusable && buf != nil {
		p.free = append(p.free, buf[:0])
	}
}
