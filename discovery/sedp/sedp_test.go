package sedp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/discovery"
	"github.com/rtps-go/rtps/discovery/match"
	"github.com/rtps-go/rtps/wire/submsg"
)

// router decodes every Send and hands each DATA submessage straight to
// whichever of the two Endpoints under test did not originate it,
// identified by message GuidPrefix. It stands in for the participant-
// level per-entity message dispatcher, out of scope for this package.
type router struct {
	a, b           *Endpoints
	prefixA, prefixB guid.Prefix
}

func (rt *router) Send(buffer []byte, dests []locator.Locator) bool {
	msg, err := submsg.DecodeMessage(buffer)
	if err != nil {
		return false
	}
	var target *Endpoints
	switch msg.Header.GuidPrefix {
	case rt.prefixA:
		target = rt.b
	case rt.prefixB:
		target = rt.a
	default:
		return false
	}
	for _, sm := range msg.Submessages {
		if sm.Header.Kind != submsg.KindData {
			continue
		}
		d, err := submsg.DecodeData(sm.Header.Flags, sm.Body, sm.Origin)
		if err != nil {
			continue
		}
		switch d.WriterID {
		case guid.EntityIDSEDPPublicationsWriter:
			target.pubReader.OnData(msg.Header.GuidPrefix, d)
		case guid.EntityIDSEDPSubscriptionsWriter:
			target.subReader.OnData(msg.Header.GuidPrefix, d)
		}
	}
	return true
}

type matchRecorder struct {
	NopListener
	writerMatches []discovery.ReaderProxyData
	readerMatches []discovery.WriterProxyData
	incompatible  []match.IncompatibleReason
}

func (r *matchRecorder) OnWriterMatch(local guid.GUID, remote discovery.ReaderProxyData, sel locator.Selector) {
	r.writerMatches = append(r.writerMatches, remote)
}
func (r *matchRecorder) OnReaderMatch(local guid.GUID, remote discovery.WriterProxyData, sel locator.Selector) {
	r.readerMatches = append(r.readerMatches, remote)
}
func (r *matchRecorder) OnWriterIncompatibleQoS(local guid.GUID, remote discovery.ReaderProxyData, reason match.IncompatibleReason) {
	r.incompatible = append(r.incompatible, reason)
}
func (r *matchRecorder) OnReaderIncompatibleQoS(local guid.GUID, remote discovery.WriterProxyData, reason match.IncompatibleReason) {
	r.incompatible = append(r.incompatible, reason)
}

func testPrefix(b byte) guid.Prefix {
	var p guid.Prefix
	p[0] = b
	return p
}

func TestSEDPDiscoversRemoteWriterAndMatchesLocalReader(t *testing.T) {
	prefixA, prefixB := testPrefix(1), testPrefix(2)
	recA := &matchRecorder{}
	recB := &matchRecorder{}

	rt := &router{prefixA: prefixA, prefixB: prefixB}
	a := New(prefixA, rt, recA, nil)
	b := New(prefixB, rt, recB, nil)
	rt.a, rt.b = a, b
	defer a.Stop()
	defer b.Stop()

	a.OnParticipantDiscovered(discovery.ParticipantProxyData{GUID: guid.GUID{Prefix: prefixB, EntityID: guid.EntityIDParticipant}})
	b.OnParticipantDiscovered(discovery.ParticipantProxyData{GUID: guid.GUID{Prefix: prefixA, EntityID: guid.EntityIDParticipant}})

	localReaderGUID := guid.GUID{Prefix: prefixB, EntityID: guid.EntityID{0, 0, 1, byte(guid.KindReaderWithKey)}}
	b.RegisterLocalReader(localReaderGUID, "square", "ShapeType", qos.DefaultReaderQoS())

	localWriterGUID := guid.GUID{Prefix: prefixA, EntityID: guid.EntityID{0, 0, 1, byte(guid.KindWriterWithKey)}}
	a.RegisterLocalWriter(localWriterGUID, "square", "ShapeType", qos.DefaultWriterQoS())

	require.Len(t, recB.readerMatches, 1)
	assert.Equal(t, localWriterGUID, recB.readerMatches[0].GUID)
}

func TestSEDPIncompatibleDurabilityReported(t *testing.T) {
	prefixA, prefixB := testPrefix(3), testPrefix(4)
	recA := &matchRecorder{}
	recB := &matchRecorder{}

	rt := &router{prefixA: prefixA, prefixB: prefixB}
	a := New(prefixA, rt, recA, nil)
	b := New(prefixB, rt, recB, nil)
	rt.a, rt.b = a, b
	defer a.Stop()
	defer b.Stop()

	a.OnParticipantDiscovered(discovery.ParticipantProxyData{GUID: guid.GUID{Prefix: prefixB, EntityID: guid.EntityIDParticipant}})
	b.OnParticipantDiscovered(discovery.ParticipantProxyData{GUID: guid.GUID{Prefix: prefixA, EntityID: guid.EntityIDParticipant}})

	rq := qos.DefaultReaderQoS()
	rq.Durability = qos.TransientLocal
	localReaderGUID := guid.GUID{Prefix: prefixB, EntityID: guid.EntityID{0, 0, 1, byte(guid.KindReaderWithKey)}}
	b.RegisterLocalReader(localReaderGUID, "square", "ShapeType", rq)

	wq := qos.DefaultWriterQoS()
	wq.Durability = qos.Volatile
	localWriterGUID := guid.GUID{Prefix: prefixA, EntityID: guid.EntityID{0, 0, 1, byte(guid.KindWriterWithKey)}}
	a.RegisterLocalWriter(localWriterGUID, "square", "ShapeType", wq)

	require.Len(t, recB.incompatible, 1)
	assert.NotZero(t, recB.incompatible[0]&match.Durability)
}
