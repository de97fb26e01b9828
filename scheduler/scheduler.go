// Package scheduler implements the Participant's single timed-event
// scheduler of spec.md §5 (`ResourceEvent`): heartbeat periods,
// nack-response delays, nack-suppression expiries, lease watchdogs,
// and PDP/WLP announcement ticks all run as cooperative callbacks on
// one background goroutine, ordered by deadline. Pending events are
// kept in an avl.Tree keyed by deadline (`avl.New` with a deadline
// comparator, `Insert`/`Remove` returning and consuming `*avl.Node` as
// the cancellation handle); the goroutine wakes at the next actual
// deadline via an `Iterator(avl.Forward)` walk that stops at the first
// not-yet-due node, rather than polling on a fixed sweep period.
package scheduler

import (
	"sync"
	"time"

	"gitlab.com/yawning/avl.git"

	"github.com/rtps-go/rtps/rtpslog"
	"github.com/rtps-go/rtps/worker"
)

// Event is a cancellation handle for a scheduled callback.
type Event struct {
	seq      uint64
	deadline time.Time
	period   time.Duration // 0: one-shot
	callback func()

	node *avl.Node
}

func compare(a, b interface{}) int {
	ea, eb := a.(*Event), b.(*Event)
	switch {
	case ea.deadline.Before(eb.deadline):
		return -1
	case ea.deadline.After(eb.deadline):
		return 1
	case ea.seq < eb.seq:
		return -1
	case ea.seq > eb.seq:
		return 1
	default:
		return 0
	}
}

// Scheduler runs one Participant's ordered timed-event queue. Callbacks
// must return promptly (spec.md §5: "events are cooperative"); long
// work belongs on the asyncwriter pool, not here.
type Scheduler struct {
	worker.Worker
	mu sync.Mutex

	tree   *avl.Tree
	seq    uint64
	wakeCh chan struct{}
	log    *rtpslog.Logger
}

// New constructs a Scheduler. Call Start to launch its goroutine.
func New(log *rtpslog.Logger) *Scheduler {
	return &Scheduler{
		tree:   avl.New(compare),
		wakeCh: make(chan struct{}, 1),
		log:    log,
	}
}

// Start launches the scheduler's background loop.
func (s *Scheduler) Start() { s.Go(s.loop) }

// Stop halts the loop and waits for it to exit. Pending events are
// simply discarded; any in-flight callback has already returned since
// the loop runs callbacks synchronously, one at a time.
func (s *Scheduler) Stop() {
	s.Halt()
	s.Wait()
}

// At schedules cb to run once at deadline. The returned Event can be
// passed to Cancel before it fires.
func (s *Scheduler) At(deadline time.Time, cb func()) *Event {
	return s.schedule(deadline, 0, cb)
}

// After schedules cb to run once after d elapses.
func (s *Scheduler) After(d time.Duration, cb func()) *Event {
	return s.schedule(time.Now().Add(d), 0, cb)
}

// Every schedules cb to run repeatedly every period, starting after
// one period elapses. Cancel stops further recurrences; a recurrence
// already popped off the queue still runs to completion.
func (s *Scheduler) Every(period time.Duration, cb func()) *Event {
	return s.schedule(time.Now().Add(period), period, cb)
}

func (s *Scheduler) schedule(deadline time.Time, period time.Duration, cb func()) *Event {
	s.mu.Lock()
	s.seq++
	e := &Event{seq: s.seq, deadline: deadline, period: period, callback: cb}
	e.node = s.tree.Insert(e)
	earliest := s.earliestLocked() == e
	s.mu.Unlock()
	if earliest {
		s.kick()
	}
	return e
}

// Cancel removes e from the queue if it has not yet fired. Safe to
// call more than once or after e has already fired.
func (s *Scheduler) Cancel(e *Event) {
	s.mu.Lock()
	if e.node != nil {
		s.tree.Remove(e.node)
		e.node = nil
	}
	s.mu.Unlock()
}

func (s *Scheduler) earliestLocked() *Event {
	iter := s.tree.Iterator(avl.Forward)
	node := iter.First()
	if node == nil {
		return nil
	}
	return node.Value.(*Event)
}

func (s *Scheduler) kick() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	for {
		s.mu.Lock()
		next := s.earliestLocked()
		s.mu.Unlock()

		var wait <-chan time.Time
		if next != nil {
			if d := time.Until(next.deadline); d > 0 {
				wait = time.After(d)
			} else {
				wait = closedTimeCh
			}
		}

		select {
		case <-s.HaltCh():
			return
		case <-s.wakeCh:
			continue
		case <-wait:
			s.fireDue()
		}
	}
}

// closedTimeCh is a pre-closed channel used to fire immediately when
// an event's deadline has already elapsed by the time loop wakes.
var closedTimeCh = func() <-chan time.Time {
	ch := make(chan time.Time)
	close(ch)
	return ch
}()

func (s *Scheduler) fireDue() {
	now := time.Now()
	var due []*Event

	s.mu.Lock()
	iter := s.tree.Iterator(avl.Forward)
	for node := iter.First(); node != nil; node = iter.Next() {
		e := node.Value.(*Event)
		if e.deadline.After(now) {
			break
		}
		due = append(due, e)
		s.tree.Remove(node)
		e.node = nil
	}
	// Periodic events go back into the queue under the same handle
	// before their callbacks run, so Cancel on that handle (even from
	// inside the callback) stops every later recurrence.
	for _, e := range due {
		if e.period > 0 {
			e.deadline = now.Add(e.period)
			e.node = s.tree.Insert(e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		e.callback()
	}
}

// Len reports the number of pending events, for tests and metrics.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}
