package plist

import (
	"encoding/binary"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
)

// EncodeLocator serializes a Locator to its wire form: {kind:int32,
// port:uint32, address:[16]byte}, used for PIDUnicastLocator,
// PIDMetatrafficUnicastLocator and their multicast/default siblings
// (spec.md §4.7/§4.8 ProxyData).
func EncodeLocator(l locator.Locator) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint32(b[0:], uint32(l.Kind))
	binary.LittleEndian.PutUint32(b[4:], l.Port)
	copy(b[8:], l.Address[:])
	return b
}

func DecodeLocator(b []byte) (locator.Locator, bool) {
	if len(b) < 24 {
		return locator.Locator{}, false
	}
	var l locator.Locator
	l.Kind = locator.Kind(binary.LittleEndian.Uint32(b[0:]))
	l.Port = binary.LittleEndian.Uint32(b[4:])
	copy(l.Address[:], b[8:24])
	return l, true
}

// AddLocators appends one parameter per locator under pid.
func AddLocators(l *List, pid PID, locs []locator.Locator) {
	for _, loc := range locs {
		l.Add(pid, EncodeLocator(loc))
	}
}

// GetLocators collects every parameter with the given PID as a
// Locator, in encounter order.
func GetLocators(l *List, pid PID) []locator.Locator {
	var out []locator.Locator
	for _, p := range l.Params {
		if p.PID != pid {
			continue
		}
		if loc, ok := DecodeLocator(p.Value); ok {
			out = append(out, loc)
		}
	}
	return out
}

// EncodeGUID serializes a GUID to its 16-byte wire form: 12-byte
// GuidPrefix followed by 4-byte EntityId, used for PIDParticipantGUID
// and PIDEndpointGUID.
func EncodeGUID(g guid.GUID) []byte {
	b := make([]byte, guid.PrefixLength+guid.EntityIDLength)
	copy(b, g.Prefix[:])
	copy(b[guid.PrefixLength:], g.EntityID[:])
	return b
}

func DecodeGUID(b []byte) (guid.GUID, bool) {
	if len(b) < guid.PrefixLength+guid.EntityIDLength {
		return guid.GUID{}, false
	}
	var g guid.GUID
	copy(g.Prefix[:], b[:guid.PrefixLength])
	copy(g.EntityID[:], b[guid.PrefixLength:guid.PrefixLength+guid.EntityIDLength])
	return g, true
}
