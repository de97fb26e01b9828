// Package guid implements the RTPS GuidPrefix/EntityId/GUID identifiers
// (spec.md §3 "GUID and identifiers").
package guid

import (
	"encoding/hex"
	"fmt"
)

// PrefixLength is the size in bytes of a GuidPrefix.
const PrefixLength = 12

// EntityIDLength is the size in bytes of an EntityId.
const EntityIDLength = 4

// Prefix identifies a Participant: host/process/participant
// disambiguator bytes, opaque beyond that to this layer.
type Prefix [PrefixLength]byte

func (p Prefix) String() string {
	return hex.EncodeToString(p[:])
}

// IsUnknown reports whether p is the all-zero prefix.
func (p Prefix) IsUnknown() bool {
	return p == Prefix{}
}

// EntityKind is the one-byte kind octet of an EntityId, identifying
// the entity's role (writer, reader, participant, built-in, ...).
type EntityKind byte

const (
	KindUnknown               EntityKind = 0x00
	KindParticipant           EntityKind = 0xc1
	KindWriterWithKey         EntityKind = 0x02
	KindWriterNoKey           EntityKind = 0x03
	KindReaderNoKey           EntityKind = 0x04
	KindReaderWithKey         EntityKind = 0x07
	KindWriterGroup           EntityKind = 0xc9
	KindReaderGroup           EntityKind = 0xca
	KindBuiltinWriterWithKey  EntityKind = 0xc2 | 0x40
	KindBuiltinWriterNoKey    EntityKind = 0xc3 | 0x40
	KindBuiltinReaderNoKey    EntityKind = 0xc4 | 0x40
	KindBuiltinReaderWithKey  EntityKind = 0xc7 | 0x40
	KindBuiltinParticipant    EntityKind = 0xc1 | 0x40
)

// EntityID names an endpoint inside a Participant: a 3-byte key plus a
// 1-byte kind.
type EntityID [EntityIDLength]byte

func (e EntityID) Kind() EntityKind { return EntityKind(e[3]) }

func (e EntityID) String() string {
	return hex.EncodeToString(e[:])
}

// Reserved built-in EntityIds (spec.md §3, §4.7, §4.8, §4.9).
var (
	EntityIDUnknown = EntityID{0x00, 0x00, 0x00, 0x00}

	EntityIDParticipant = EntityID{0x00, 0x00, 0x01, byte(KindBuiltinParticipant)}

	EntityIDSPDPWriter = EntityID{0x00, 0x01, 0x00, byte(KindBuiltinWriterWithKey)}
	EntityIDSPDPReader = EntityID{0x00, 0x01, 0x00, byte(KindBuiltinReaderWithKey)}

	EntityIDSEDPPublicationsWriter  = EntityID{0x00, 0x00, 0x03, byte(KindBuiltinWriterWithKey)}
	EntityIDSEDPPublicationsReader  = EntityID{0x00, 0x00, 0x03, byte(KindBuiltinReaderWithKey)}
	EntityIDSEDPSubscriptionsWriter = EntityID{0x00, 0x00, 0x04, byte(KindBuiltinWriterWithKey)}
	EntityIDSEDPSubscriptionsReader = EntityID{0x00, 0x00, 0x04, byte(KindBuiltinReaderWithKey)}

	EntityIDWriterLivelinessWriter = EntityID{0x00, 0x02, 0x00, byte(KindBuiltinWriterWithKey)}
	EntityIDWriterLivelinessReader = EntityID{0x00, 0x02, 0x00, byte(KindBuiltinReaderWithKey)}
)

// GUID is the (GuidPrefix, EntityId) pair, globally unique.
type GUID struct {
	Prefix   Prefix
	EntityID EntityID
}

func New(prefix Prefix, entity EntityID) GUID {
	return GUID{Prefix: prefix, EntityID: entity}
}

func (g GUID) String() string {
	return fmt.Sprintf("%s:%s", g.Prefix, g.EntityID)
}

func (g GUID) IsUnknown() bool {
	return g.Prefix.IsUnknown() && g.EntityID == EntityIDUnknown
}
