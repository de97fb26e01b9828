package endpoint

import (
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/seqnum"
	"github.com/rtps-go/rtps/history"
	"github.com/rtps-go/rtps/rtpslog"
	"github.com/rtps-go/rtps/wire/submsg"
)

// seqnumSetOf builds a SequenceNumberSet with base and the given
// present offsets marked, for constructing test ACKNACK/GAP bodies.
func seqnumSetOf(t *testing.T, base seqnum.SequenceNumber, presentOffsets ...int) *seqnum.SequenceNumberSet {
	t.Helper()
	set := seqnum.NewSet(base)
	for _, off := range presentOffsets {
		require.NoError(t, set.Add(base+seqnum.SequenceNumber(off)))
	}
	return set
}

func testLogger(t *testing.T) *rtpslog.Logger {
	t.Helper()
	backend, err := rtpslog.New(io.Discard, "DEBUG")
	require.NoError(t, err)
	return backend.GetLogger("endpoint_test")
}

// fakeSender records every Send call for assertions, in place of a
// real transport.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	dests []locator.Locator
	msg   *submsg.Message
}

func (f *fakeSender) Send(buf []byte, dests []locator.Locator) bool {
	msg, err := submsg.DecodeMessage(buf)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		f.sent = append(f.sent, sentMessage{dests: dests, msg: msg})
	}
	return true
}

func (f *fakeSender) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) all() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func kindsOf(m sentMessage) []submsg.Kind {
	out := make([]submsg.Kind, len(m.msg.Submessages))
	for i, s := range m.msg.Submessages {
		out[i] = s.Header.Kind
	}
	return out
}

func testGUID(t *testing.T, entity byte) guid.GUID {
	t.Helper()
	return guid.GUID{
		Prefix:   guid.Prefix{0x01, 0x0f, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		EntityID: guid.EntityID{0x00, 0x00, entity, 0x02},
	}
}

func testLocator(t *testing.T, ip string, port int) locator.Locator {
	t.Helper()
	l, err := locator.FromUDPAddr(&net.UDPAddr{IP: net.ParseIP(ip), Port: port})
	require.NoError(t, err)
	return l
}

func selOf(l locator.Locator) locator.Selector {
	return locator.Selector{Unicast: []locator.Locator{l}}
}

// recordingReaderListener captures delivered changes and match/
// liveliness events for assertions.
type recordingReaderListener struct {
	mu         sync.Mutex
	delivered  []*history.CacheChange
	matched    []guid.GUID
	unmatched  []guid.GUID
	liveliness []bool
}

func (l *recordingReaderListener) OnDataAvailable(c *history.CacheChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delivered = append(l.delivered, c)
}
func (l *recordingReaderListener) OnMatched(remote guid.GUID)   { l.mu.Lock(); l.matched = append(l.matched, remote); l.mu.Unlock() }
func (l *recordingReaderListener) OnUnmatched(remote guid.GUID) { l.mu.Lock(); l.unmatched = append(l.unmatched, remote); l.mu.Unlock() }
func (l *recordingReaderListener) OnLivelinessChanged(remote guid.GUID, alive bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.liveliness = append(l.liveliness, alive)
}

func (l *recordingReaderListener) deliveredLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.delivered)
}

// recordingWriterListener captures match/QoS events for assertions.
type recordingWriterListener struct {
	mu        sync.Mutex
	matched   []guid.GUID
	unmatched []guid.GUID
}

func (l *recordingWriterListener) OnMatched(remote guid.GUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.matched = append(l.matched, remote)
}
func (l *recordingWriterListener) OnUnmatched(remote guid.GUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unmatched = append(l.unmatched, remote)
}
func (l *recordingWriterListener) OnIncompatibleQoS(guid.GUID) {}
