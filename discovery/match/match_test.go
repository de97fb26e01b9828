package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rtps-go/rtps/core/qos"
)

func TestCheckCompatibleDefaults(t *testing.T) {
	w := Writer("square", "ShapeType", qos.DefaultWriterQoS())
	r := Reader("square", "ShapeType", qos.DefaultReaderQoS())
	ok, reason := Check(w, r)
	assert.True(t, ok)
	assert.Zero(t, reason)
}

func TestCheckTopicMismatch(t *testing.T) {
	w := Writer("square", "ShapeType", qos.DefaultWriterQoS())
	r := Reader("circle", "ShapeType", qos.DefaultReaderQoS())
	ok, reason := Check(w, r)
	assert.False(t, ok)
	assert.NotZero(t, reason&TopicOrType)
}

func TestCheckDurabilityIncompatible(t *testing.T) {
	wq := qos.DefaultWriterQoS()
	wq.Durability = qos.Volatile
	rq := qos.DefaultReaderQoS()
	rq.Durability = qos.TransientLocal
	ok, reason := Check(Writer("t", "T", wq), Reader("t", "T", rq))
	assert.False(t, ok)
	assert.NotZero(t, reason&Durability)
}

func TestCheckReliabilityIncompatible(t *testing.T) {
	wq := qos.DefaultWriterQoS()
	wq.Reliability.Kind = qos.BestEffort
	rq := qos.DefaultReaderQoS()
	rq.Reliability.Kind = qos.Reliable
	ok, reason := Check(Writer("t", "T", wq), Reader("t", "T", rq))
	assert.False(t, ok)
	assert.NotZero(t, reason&Reliability)
}

func TestCheckDeadlineIncompatible(t *testing.T) {
	wq := qos.DefaultWriterQoS()
	wq.Deadline.Period = 2 * time.Second
	rq := qos.DefaultReaderQoS()
	rq.Deadline.Period = time.Second
	ok, reason := Check(Writer("t", "T", wq), Reader("t", "T", rq))
	assert.False(t, ok)
	assert.NotZero(t, reason&Deadline)
}

func TestCheckLivelinessLeaseIncompatible(t *testing.T) {
	wq := qos.DefaultWriterQoS()
	wq.Liveliness.LeaseDuration = 10 * time.Second
	rq := qos.DefaultReaderQoS()
	rq.Liveliness.LeaseDuration = 5 * time.Second
	ok, reason := Check(Writer("t", "T", wq), Reader("t", "T", rq))
	assert.False(t, ok)
	assert.NotZero(t, reason&Liveliness)
}

func TestCheckPartitionDisjoint(t *testing.T) {
	wq := qos.DefaultWriterQoS()
	wq.Partition = qos.Partition{Names: []string{"A"}}
	rq := qos.DefaultReaderQoS()
	rq.Partition = qos.Partition{Names: []string{"B"}}
	ok, reason := Check(Writer("t", "T", wq), Reader("t", "T", rq))
	assert.False(t, ok)
	assert.NotZero(t, reason&Partition)
}
