// Package asyncwriter implements the per-Participant asynchronous
// writer thread of spec.md §5: when a Writer's `publish_mode` is
// ASYNCHRONOUS, `add_change` only marks a CacheChange UNSENT and wakes
// this pool, which drains every registered Writer's UNSENT list under
// a token-bucket-like throughput controller (`bytesPerPeriod`,
// `periodMillisecs`). The queue feeding the pool is an
// gopkg.in/eapache/channels.v1 InfiniteChannel: a non-blocking producer
// side feeding a single consumer goroutine, so add_change never blocks
// on a full bounded chan.
package asyncwriter

import (
	"math"
	"sync"
	"time"

	"gopkg.in/eapache/channels.v1"

	"github.com/rtps-go/rtps/rtpslog"
	"github.com/rtps-go/rtps/worker"
)

// Flusher is implemented by anything the pool can drain: an
// asynchronous Writer's UNSENT-list flush, bounded to at most budget
// bytes this call. It reports how many bytes it actually sent and
// whether UNSENT changes remain after the call.
type Flusher interface {
	FlushUnsent(budget int) (sent int, more bool)
}

// ThroughputController mirrors spec.md §5's flow-control knobs: at
// most BytesPerPeriod bytes are released to Flushers every
// PeriodMillisecs. PeriodMillisecs<=0 disables throttling entirely
// (every Flush call gets an effectively unbounded budget).
type ThroughputController struct {
	BytesPerPeriod  int
	PeriodMillisecs int
}

// Unthrottled disables flow control: every drain gets an unbounded
// budget, matching a Writer with no throughput_controller configured.
var Unthrottled = ThroughputController{}

// Pool is the per-Participant asynchronous writer thread.
type Pool struct {
	worker.Worker

	queue      channels.Channel
	controller ThroughputController
	log        *rtpslog.Logger

	mu      sync.Mutex
	pending map[Flusher]bool
	starved map[Flusher]bool
	tokens  int
}

// New constructs a Pool. Call Start to launch its drain goroutine.
func New(controller ThroughputController, log *rtpslog.Logger) *Pool {
	return &Pool{
		queue:      channels.NewInfiniteChannel(),
		controller: controller,
		log:        log,
		pending:    make(map[Flusher]bool),
		starved:    make(map[Flusher]bool),
		tokens:     budgetOf(controller),
	}
}

func budgetOf(c ThroughputController) int {
	if c.PeriodMillisecs <= 0 || c.BytesPerPeriod <= 0 {
		return math.MaxInt32
	}
	return c.BytesPerPeriod
}

// Start launches the drain loop.
func (p *Pool) Start() { p.Go(p.loop) }

// Stop closes the work queue, halts the loop, and waits for it to
// exit.
func (p *Pool) Stop() {
	p.Halt()
	p.Wait()
	p.queue.Close()
}

// Wake enqueues f for draining if it is not already queued or waiting
// on the next token refill.
func (p *Pool) Wake(f Flusher) {
	p.mu.Lock()
	if p.pending[f] || p.starved[f] {
		p.mu.Unlock()
		return
	}
	p.pending[f] = true
	p.mu.Unlock()
	p.queue.In() <- f
}

func (p *Pool) loop() {
	var refill <-chan time.Time
	if p.controller.PeriodMillisecs > 0 && p.controller.BytesPerPeriod > 0 {
		ticker := time.NewTicker(time.Duration(p.controller.PeriodMillisecs) * time.Millisecond)
		defer ticker.Stop()
		refill = ticker.C
	}

	for {
		select {
		case <-p.HaltCh():
			return
		case <-refill:
			p.onRefill()
		case v, ok := <-p.queue.Out():
			if !ok {
				return
			}
			p.drain(v.(Flusher))
		}
	}
}

func (p *Pool) drain(f Flusher) {
	p.mu.Lock()
	delete(p.pending, f)
	tokens := p.tokens
	p.mu.Unlock()

	if tokens <= 0 && p.controller.PeriodMillisecs > 0 && p.controller.BytesPerPeriod > 0 {
		// Out of budget this period: park f until the next refill
		// instead of busy-spinning it back through the queue.
		p.mu.Lock()
		p.starved[f] = true
		p.mu.Unlock()
		return
	}

	sent, more := f.FlushUnsent(tokens)
	p.mu.Lock()
	p.tokens -= sent
	p.mu.Unlock()
	if p.log != nil && sent > 0 {
		p.log.Debugf("asyncwriter: flushed %d bytes, more=%v", sent, more)
	}
	if more {
		p.Wake(f)
	}
}

func (p *Pool) onRefill() {
	p.mu.Lock()
	p.tokens = budgetOf(p.controller)
	starved := make([]Flusher, 0, len(p.starved))
	for f := range p.starved {
		starved = append(starved, f)
		delete(p.starved, f)
	}
	p.mu.Unlock()

	for _, f := range starved {
		p.Wake(f)
	}
}
