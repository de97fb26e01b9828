package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterFiresOnce(t *testing.T) {
	s := New(nil)
	s.Start()
	defer s.Stop()

	var n int32
	s.After(10*time.Millisecond, func() { atomic.AddInt32(&n, 1) })

	require.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&n))
}

func TestEveryFiresRepeatedly(t *testing.T) {
	s := New(nil)
	s.Start()
	defer s.Stop()

	var n int32
	s.Every(5*time.Millisecond, func() { atomic.AddInt32(&n, 1) })

	require.Eventually(t, func() bool { return atomic.LoadInt32(&n) >= 3 }, time.Second, 5*time.Millisecond)
}

func TestCancelPreventsFiring(t *testing.T) {
	s := New(nil)
	s.Start()
	defer s.Stop()

	var n int32
	e := s.After(20*time.Millisecond, func() { atomic.AddInt32(&n, 1) })
	s.Cancel(e)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&n))
}

func TestEventsFireInDeadlineOrder(t *testing.T) {
	s := New(nil)
	s.Start()
	defer s.Stop()

	var mu sync.Mutex
	var order []int

	s.After(20*time.Millisecond, func() { mu.Lock(); order = append(order, 2); mu.Unlock() })
	s.After(5*time.Millisecond, func() { mu.Lock(); order = append(order, 0); mu.Unlock() })
	s.After(10*time.Millisecond, func() { mu.Lock(); order = append(order, 1); mu.Unlock() })

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestLenReflectsPendingEvents(t *testing.T) {
	s := New(nil)
	s.Start()
	defer s.Stop()

	s.After(time.Hour, func() {})
	s.After(time.Hour, func() {})
	assert.Equal(t, 2, s.Len())
}

func TestSchedulingEarlierEventWakesLoopPromptly(t *testing.T) {
	s := New(nil)
	s.Start()
	defer s.Stop()

	s.After(time.Hour, func() {}) // would otherwise keep loop asleep for an hour

	var n int32
	s.After(10*time.Millisecond, func() { atomic.AddInt32(&n, 1) })

	require.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 1 }, time.Second, 5*time.Millisecond)
}
