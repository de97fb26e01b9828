package asyncwriter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFlusher has a queue of byte-sized chunks; each FlushUnsent call
// sends as many as fit within budget, first-in-first-out.
type fakeFlusher struct {
	mu     sync.Mutex
	chunks []int
	calls  int
}

func (f *fakeFlusher) FlushUnsent(budget int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	sent := 0
	for len(f.chunks) > 0 && f.chunks[0] <= budget-sent {
		sent += f.chunks[0]
		f.chunks = f.chunks[1:]
	}
	return sent, len(f.chunks) > 0
}

func (f *fakeFlusher) remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

func TestUnthrottledDrainsEverythingInOneCall(t *testing.T) {
	p := New(Unthrottled, nil)
	p.Start()
	defer p.Stop()

	f := &fakeFlusher{chunks: []int{10, 20, 30}}
	p.Wake(f)

	require.Eventually(t, func() bool { return f.remaining() == 0 }, time.Second, 5*time.Millisecond)
}

func TestThrottledDrainSpansMultiplePeriods(t *testing.T) {
	p := New(ThroughputController{BytesPerPeriod: 100, PeriodMillisecs: 10}, nil)
	p.Start()
	defer p.Stop()

	f := &fakeFlusher{chunks: []int{80, 80, 80}} // 240 bytes total, 100/period
	p.Wake(f)

	require.Eventually(t, func() bool { return f.remaining() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, f.calls, 3) // can't all fit in a single period's budget
}

func TestWakeDedupesAlreadyQueuedFlusher(t *testing.T) {
	p := New(Unthrottled, nil)
	p.Start()
	defer p.Stop()

	f := &fakeFlusher{chunks: []int{5}}
	p.Wake(f)
	p.Wake(f) // should not double-enqueue
	p.Wake(f)

	require.Eventually(t, func() bool { return f.remaining() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, f.calls, 2)
}
