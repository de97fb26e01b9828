// Package discovery implements the ProxyData types carried by PDP and
// SEDP (spec.md §4.7, §4.8). The PDP and SEDP protocol state machines
// live in the sibling discovery/pdp and discovery/sedp packages; this
// package holds only the data each one announces.
package discovery

import (
	"time"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/wire/plist"
)

// ParticipantProxyData is what SPDP announces about one participant
// (spec.md §4.7 "ParticipantProxyData").
type ParticipantProxyData struct {
	GUID                        guid.GUID
	ProtocolVersion              [2]uint8
	VendorID                     [2]byte
	MetatrafficUnicastLocators   []locator.Locator
	MetatrafficMulticastLocators []locator.Locator
	DefaultUnicastLocators       []locator.Locator
	DefaultMulticastLocators     []locator.Locator
	LeaseDuration                time.Duration
	UserData                     []byte
}

// Encode serializes p as a PL_CDR ParameterList (the DATA submessage
// payload of an SPDP announcement).
func (p ParticipantProxyData) Encode() *plist.List {
	l := &plist.List{}
	l.Add(plist.PIDParticipantGUID, plist.EncodeGUID(p.GUID))
	plist.AddLocators(l, plist.PIDMetatrafficUnicastLocator, p.MetatrafficUnicastLocators)
	plist.AddLocators(l, plist.PIDMetatrafficMulticastLocator, p.MetatrafficMulticastLocators)
	plist.AddLocators(l, plist.PIDDefaultUnicastLocator, p.DefaultUnicastLocators)
	plist.AddLocators(l, plist.PIDDefaultMulticastLocator, p.DefaultMulticastLocators)
	lease := make([]byte, 8)
	sec := int32(p.LeaseDuration / time.Second)
	nsec := uint32(p.LeaseDuration % time.Second)
	putInt32LE(lease[0:], sec)
	putUint32LE(lease[4:], nsec)
	l.Add(plist.PIDParticipantLeaseDuration, lease)
	if len(p.UserData) > 0 {
		l.Add(plist.PIDUserData, p.UserData)
	}
	return l
}

// DecodeParticipantProxyData reconstructs a ParticipantProxyData from
// a decoded ParameterList. LeaseDuration defaults to 20s (spec.md
// §4.7 default) when the PID is absent.
func DecodeParticipantProxyData(l *plist.List) (ParticipantProxyData, bool) {
	var p ParticipantProxyData
	pg, ok := l.Get(plist.PIDParticipantGUID)
	if !ok {
		return p, false
	}
	g, ok := plist.DecodeGUID(pg.Value)
	if !ok {
		return p, false
	}
	p.GUID = g
	p.MetatrafficUnicastLocators = plist.GetLocators(l, plist.PIDMetatrafficUnicastLocator)
	p.MetatrafficMulticastLocators = plist.GetLocators(l, plist.PIDMetatrafficMulticastLocator)
	p.DefaultUnicastLocators = plist.GetLocators(l, plist.PIDDefaultUnicastLocator)
	p.DefaultMulticastLocators = plist.GetLocators(l, plist.PIDDefaultMulticastLocator)
	p.LeaseDuration = 20 * time.Second
	if lp, ok := l.Get(plist.PIDParticipantLeaseDuration); ok && len(lp.Value) >= 8 {
		sec := getInt32LE(lp.Value[0:])
		nsec := getUint32LE(lp.Value[4:])
		p.LeaseDuration = time.Duration(sec)*time.Second + time.Duration(nsec)
	}
	if up, ok := l.Get(plist.PIDUserData); ok {
		p.UserData = up.Value
	}
	return p, true
}

// WriterProxyData is what SEDP announces about one DataWriter (spec.md
// §4.8).
type WriterProxyData struct {
	GUID             guid.GUID
	TopicName        string
	TypeName         string
	QoS              qos.WriterQoS
	UnicastLocators  []locator.Locator
	MulticastLocators []locator.Locator
}

func (w WriterProxyData) Encode() *plist.List {
	l := &plist.List{}
	l.Add(plist.PIDEndpointGUID, plist.EncodeGUID(w.GUID))
	l.Add(plist.PIDTopicName, []byte(w.TopicName))
	l.Add(plist.PIDTypeName, []byte(w.TypeName))
	plist.EncodeWriterQoS(l, w.QoS)
	plist.AddLocators(l, plist.PIDUnicastLocator, w.UnicastLocators)
	plist.AddLocators(l, plist.PIDMulticastLocator, w.MulticastLocators)
	return l
}

func DecodeWriterProxyData(l *plist.List) (WriterProxyData, bool) {
	var w WriterProxyData
	pg, ok := l.Get(plist.PIDEndpointGUID)
	if !ok {
		return w, false
	}
	g, ok := plist.DecodeGUID(pg.Value)
	if !ok {
		return w, false
	}
	w.GUID = g
	if p, ok := l.Get(plist.PIDTopicName); ok {
		w.TopicName = string(p.Value)
	}
	if p, ok := l.Get(plist.PIDTypeName); ok {
		w.TypeName = string(p.Value)
	}
	w.QoS = plist.DecodeWriterQoS(l)
	w.UnicastLocators = plist.GetLocators(l, plist.PIDUnicastLocator)
	w.MulticastLocators = plist.GetLocators(l, plist.PIDMulticastLocator)
	return w, true
}

// ReaderProxyData is what SEDP announces about one DataReader (spec.md
// §4.8).
type ReaderProxyData struct {
	GUID              guid.GUID
	TopicName         string
	TypeName          string
	QoS               qos.ReaderQoS
	UnicastLocators   []locator.Locator
	MulticastLocators []locator.Locator
}

func (r ReaderProxyData) Encode() *plist.List {
	l := &plist.List{}
	l.Add(plist.PIDEndpointGUID, plist.EncodeGUID(r.GUID))
	l.Add(plist.PIDTopicName, []byte(r.TopicName))
	l.Add(plist.PIDTypeName, []byte(r.TypeName))
	plist.EncodeReaderQoS(l, r.QoS)
	plist.AddLocators(l, plist.PIDUnicastLocator, r.UnicastLocators)
	plist.AddLocators(l, plist.PIDMulticastLocator, r.MulticastLocators)
	return l
}

func DecodeReaderProxyData(l *plist.List) (ReaderProxyData, bool) {
	var r ReaderProxyData
	pg, ok := l.Get(plist.PIDEndpointGUID)
	if !ok {
		return r, false
	}
	g, ok := plist.DecodeGUID(pg.Value)
	if !ok {
		return r, false
	}
	r.GUID = g
	if p, ok := l.Get(plist.PIDTopicName); ok {
		r.TopicName = string(p.Value)
	}
	if p, ok := l.Get(plist.PIDTypeName); ok {
		r.TypeName = string(p.Value)
	}
	r.QoS = plist.DecodeReaderQoS(l)
	r.UnicastLocators = plist.GetLocators(l, plist.PIDUnicastLocator)
	r.MulticastLocators = plist.GetLocators(l, plist.PIDMulticastLocator)
	return r, true
}

// StatusInfoDisposedUnregistered marks a SEDP DATA as announcing the
// removal of an endpoint (spec.md §4.8 "deletions enqueue a DATA with
// status_info = DISPOSED|UNREGISTERED").
const StatusInfoDisposedUnregistered uint32 = 0x01 | 0x02

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putInt32LE(b []byte, v int32) { putUint32LE(b, uint32(v)) }

func getUint32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func getInt32LE(b []byte) int32 { return int32(getUint32LE(b)) }
