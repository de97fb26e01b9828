// Package locator implements RTPS Locators and the port-number formulas
// derived from a DomainId (spec.md §4.1 "Locator encoding", §6 "Wire").
package locator

import (
	"fmt"
	"net"

	"golang.org/x/net/idna"
)

// Kind identifies the transport family of a Locator.
type Kind int32

const (
	KindInvalid Kind = 0
	KindUDPv4   Kind = 1
	KindUDPv6   Kind = 2
	KindTCPv4   Kind = 4
	KindTCPv6   Kind = 8
)

func (k Kind) String() string {
	switch k {
	case KindUDPv4:
		return "UDPv4"
	case KindUDPv6:
		return "UDPv6"
	case KindTCPv4:
		return "TCPv4"
	case KindTCPv6:
		return "TCPv6"
	default:
		return "Invalid"
	}
}

// AddressLength is the fixed size of the address field on the wire.
const AddressLength = 16

// Locator is the 24-byte { kind, port, address } wire structure.
type Locator struct {
	Kind    Kind
	Port    uint32
	Address [AddressLength]byte
}

// FromUDPAddr builds a Locator from a *net.UDPAddr.
func FromUDPAddr(addr *net.UDPAddr) (Locator, error) {
	var loc Locator
	ip4 := addr.IP.To4()
	if ip4 != nil {
		loc.Kind = KindUDPv4
		copy(loc.Address[12:], ip4)
	} else if ip16 := addr.IP.To16(); ip16 != nil {
		loc.Kind = KindUDPv6
		copy(loc.Address[:], ip16)
	} else {
		return Locator{}, fmt.Errorf("locator: unparseable address %v", addr.IP)
	}
	loc.Port = uint32(addr.Port)
	return loc, nil
}

// UDPAddr converts a UDPv4/UDPv6 Locator back to a *net.UDPAddr.
func (l Locator) UDPAddr() (*net.UDPAddr, error) {
	switch l.Kind {
	case KindUDPv4:
		return &net.UDPAddr{IP: net.IP(append([]byte(nil), l.Address[12:16]...)), Port: int(l.Port)}, nil
	case KindUDPv6:
		return &net.UDPAddr{IP: net.IP(append([]byte(nil), l.Address[:]...)), Port: int(l.Port)}, nil
	default:
		return nil, fmt.Errorf("locator: kind %v is not UDP", l.Kind)
	}
}

func (l Locator) String() string {
	if l.Kind == KindUDPv4 || l.Kind == KindTCPv4 {
		return fmt.Sprintf("%s:%d:%d.%d.%d.%d", l.Kind, l.Port,
			l.Address[12], l.Address[13], l.Address[14], l.Address[15])
	}
	return fmt.Sprintf("%s:%d:%x", l.Kind, l.Port, l.Address)
}

// IsMulticast reports whether the Locator's address is a multicast
// address for its IP family.
func (l Locator) IsMulticast() bool {
	switch l.Kind {
	case KindUDPv4, KindTCPv4:
		return l.Address[12] >= 224 && l.Address[12] <= 239
	case KindUDPv6, KindTCPv6:
		return l.Address[0] == 0xff
	default:
		return false
	}
}

// Equal reports field-wise equality.
func (l Locator) Equal(o Locator) bool {
	return l.Kind == o.Kind && l.Port == o.Port && l.Address == o.Address
}

// Dedup removes duplicate locators, preserving first-seen order. Used
// when a StatelessWriter unions matched readers' locators (spec.md
// §4.3).
func Dedup(locs []Locator) []Locator {
	out := make([]Locator, 0, len(locs))
	seen := make(map[Locator]bool, len(locs))
	for _, l := range locs {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// Ports holds the DomainId-derived port formula parameters of spec.md
// §6 (defaults: portBase=7400, domainIDGain=250, participantIDGain=2,
// offsetd0=0, d1=10, d2=1, d3=11).
type Ports struct {
	PortBase         uint32
	DomainIDGain     uint32
	ParticipantIDGain uint32
	OffsetD0         uint32
	OffsetD1         uint32
	OffsetD2         uint32
	OffsetD3         uint32
}

// DefaultPorts are the RTPS-specified default port parameters.
var DefaultPorts = Ports{
	PortBase:          7400,
	DomainIDGain:      250,
	ParticipantIDGain: 2,
	OffsetD0:          0,
	OffsetD1:          10,
	OffsetD2:          1,
	OffsetD3:          11,
}

// MulticastMetatrafficPort returns the multicast metatraffic port for
// a domain.
func (p Ports) MulticastMetatrafficPort(domain uint32) uint32 {
	return p.PortBase + p.DomainIDGain*domain + p.OffsetD0
}

// UnicastMetatrafficPort returns the unicast metatraffic port for a
// domain and participant id.
func (p Ports) UnicastMetatrafficPort(domain, participant uint32) uint32 {
	return p.PortBase + p.DomainIDGain*domain + p.OffsetD1 + p.ParticipantIDGain*participant
}

// MulticastUserdataPort returns the multicast user-data port for a
// domain.
func (p Ports) MulticastUserdataPort(domain uint32) uint32 {
	return p.PortBase + p.DomainIDGain*domain + p.OffsetD2
}

// UnicastUserdataPort returns the unicast user-data port for a domain
// and participant id.
func (p Ports) UnicastUserdataPort(domain, participant uint32) uint32 {
	return p.PortBase + p.DomainIDGain*domain + p.OffsetD3 + p.ParticipantIDGain*participant
}

// ValidateHostname checks a non-IP, DNS-style address used by STATIC
// or CLIENT/SERVER discovery initial-peer configuration.
func ValidateHostname(host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	_, err := idna.Lookup.ToASCII(host)
	return err
}

// Selector picks amongst a proxy's unicast/multicast candidate
// locators, preferring unicast.
type Selector struct {
	Unicast   []Locator
	Multicast []Locator
}

// Select returns the locators that should receive a datagram: unicast
// if any are present, otherwise the multicast set.
func (s Selector) Select() []Locator {
	if len(s.Unicast) > 0 {
		return s.Unicast
	}
	return s.Multicast
}
