// Package submsg implements the RTPS message framer: the fixed message
// header, the per-submessage header, and encode/decode of each
// submessage kind carried in a DATA-bearing message (spec.md §4.1
// "Message layout", "Supported submessage kinds").
package submsg

import (
	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/rtpserrors"
	"github.com/rtps-go/rtps/wire/cdr"
)

// ProtocolVersion is the {major, minor} RTPS wire version this
// implementation emits and accepts.
type ProtocolVersion struct {
	Major, Minor uint8
}

// Version22 is RTPS 2.2, the version this engine speaks.
var Version22 = ProtocolVersion{Major: 2, Minor: 2}

// VendorID identifies the implementation that produced a message; not
// interpreted beyond being carried through.
type VendorID [2]byte

// VendorUnknown is used when no vendor-specific behavior is implied.
var VendorUnknown = VendorID{0x00, 0x00}

var magic = [4]byte{'R', 'T', 'P', 'S'}

// Header is the fixed 20-byte RTPS message header.
type Header struct {
	Version  ProtocolVersion
	Vendor   VendorID
	GuidPrefix guid.Prefix
}

const HeaderLength = 4 + 2 + 2 + guid.PrefixLength

// EncodeHeader writes the message header to w.
func EncodeHeader(w *cdr.Writer, h Header) {
	w.PutBytes(magic[:])
	w.PutUint8(h.Version.Major)
	w.PutUint8(h.Version.Minor)
	w.PutBytes(h.Vendor[:])
	w.PutBytes(h.GuidPrefix[:])
}

// DecodeHeader reads and validates the message header. Per spec.md
// §4.1 "Failure semantics", a bad magic number or an unsupported major
// version drops the whole message.
func DecodeHeader(r *cdr.Reader) (Header, error) {
	var h Header
	m, err := r.GetBytes(4)
	if err != nil {
		return h, rtpserrors.NewMalformedMessageError("short header: %v", err)
	}
	if m[0] != magic[0] || m[1] != magic[1] || m[2] != magic[2] || m[3] != magic[3] {
		return h, rtpserrors.NewMalformedMessageError("bad magic %x", m)
	}
	major, err := r.GetUint8()
	if err != nil {
		return h, rtpserrors.NewMalformedMessageError("short version: %v", err)
	}
	minor, err := r.GetUint8()
	if err != nil {
		return h, rtpserrors.NewMalformedMessageError("short version: %v", err)
	}
	h.Version = ProtocolVersion{Major: major, Minor: minor}
	if h.Version.Major != Version22.Major {
		return h, rtpserrors.NewMalformedMessageError("unsupported protocol major version %d", major)
	}
	vb, err := r.GetBytes(2)
	if err != nil {
		return h, rtpserrors.NewMalformedMessageError("short vendor: %v", err)
	}
	copy(h.Vendor[:], vb)
	pb, err := r.GetBytes(guid.PrefixLength)
	if err != nil {
		return h, rtpserrors.NewMalformedMessageError("short guid prefix: %v", err)
	}
	copy(h.GuidPrefix[:], pb)
	return h, nil
}

// Kind identifies a submessage's semantic type (spec.md §4.1 "Supported
// submessage kinds").
type Kind uint8

const (
	KindPad           Kind = 0x01
	KindAckNack       Kind = 0x06
	KindHeartbeat     Kind = 0x07
	KindGap           Kind = 0x08
	KindInfoTS        Kind = 0x09
	KindInfoSrc       Kind = 0x0c
	KindInfoDst       Kind = 0x0e
	KindData          Kind = 0x15
	KindDataFrag      Kind = 0x16
	KindNackFrag      Kind = 0x12
	KindHeartbeatFrag Kind = 0x13
	// Security submessage kinds are recognized but not implemented
	// (out of scope): SEC_PREFIX/BODY/POSTFIX, SRTPS_PREFIX/POSTFIX.
	KindSecPrefix    Kind = 0x31
	KindSecBody      Kind = 0x30
	KindSecPostfix   Kind = 0x32
	KindSRTPSPrefix  Kind = 0x33
	KindSRTPSPostfix Kind = 0x34
)

func (k Kind) String() string {
	switch k {
	case KindPad:
		return "PAD"
	case KindAckNack:
		return "ACKNACK"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindGap:
		return "GAP"
	case KindInfoTS:
		return "INFO_TS"
	case KindInfoSrc:
		return "INFO_SRC"
	case KindInfoDst:
		return "INFO_DST"
	case KindData:
		return "DATA"
	case KindDataFrag:
		return "DATA_FRAG"
	case KindNackFrag:
		return "NACK_FRAG"
	case KindHeartbeatFrag:
		return "HEARTBEAT_FRAG"
	default:
		return "UNKNOWN"
	}
}

// Flag bits common across submessage headers; kind-specific flags
// reuse these bit positions with different meaning per kind.
const (
	FlagEndianness uint8 = 1 << 0
)

// endianFromFlags extracts the CDR byte order a submessage body was
// encoded with from its header's E flag.
func endianFromFlags(flags uint8) cdr.Endian {
	if flags&FlagEndianness != 0 {
		return cdr.LittleEndian
	}
	return cdr.BigEndian
}

// SubHeader is the 4-byte per-submessage header.
type SubHeader struct {
	Kind   Kind
	Flags  uint8
	Length uint16 // 0 means "extends to the end of the message"
}

func EncodeSubHeader(w *cdr.Writer, h SubHeader) {
	w.PutUint8(uint8(h.Kind))
	w.PutUint8(h.Flags)
	// length is itself endianness-sensitive per the submessage's own
	// E flag, but the header's own two bytes are written in the
	// writer's chosen order.
	w.PutUint16(h.Length)
}

func DecodeSubHeader(r *cdr.Reader) (SubHeader, error) {
	var h SubHeader
	k, err := r.GetUint8()
	if err != nil {
		return h, err
	}
	flags, err := r.GetUint8()
	if err != nil {
		return h, err
	}
	length, err := r.GetUint16()
	if err != nil {
		return h, err
	}
	h.Kind = Kind(k)
	h.Flags = flags
	h.Length = length
	return h, nil
}
