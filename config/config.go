// Package config loads the Participant/Endpoint attribute surface of
// spec.md §6 ("Configuration surface") from TOML via
// github.com/BurntSushi/toml. No CLI flag parsing lives here — the
// spec's Non-goals exclude it — this package only decodes a file or
// string into plain Go structs a caller then hands to the
// participant/endpoint constructors.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/qos"
)

// Participant is the top-level decoded configuration: domain, discovery,
// transport, and the endpoints it statically owns (spec.md §6
// "Participant attributes").
type Participant struct {
	DomainID       uint32   `toml:"domain_id"`
	Name           string   `toml:"name"`
	ParticipantID  uint32   `toml:"participant_id"`
	UserData       string   `toml:"user_data"`

	Transport Transport `toml:"transport"`
	Discovery Discovery `toml:"discovery"`

	Writers []Writer `toml:"writer"`
	Readers []Reader `toml:"reader"`
}

// Transport configures the locators a Participant binds and
// advertises (spec.md §6 "transport stack").
type Transport struct {
	// DefaultUnicastLocators/MetatrafficUnicastLocators override the
	// domain-derived port formula of core/locator.Ports when set. An
	// empty MetatrafficUnicastLocators makes participant.New bind a
	// wildcard locator on locator.DefaultPorts.UnicastMetatrafficPort(
	// DomainID, ParticipantID); an empty DefaultUnicastLocators stays
	// empty.
	DefaultUnicastLocators      []string `toml:"default_unicast_locators"`
	MetatrafficUnicastLocators  []string `toml:"metatraffic_unicast_locators"`
	MetatrafficMulticastAddress string   `toml:"metatraffic_multicast_address"`
}

// Discovery configures the discovery protocol variant and timing
// (spec.md §4.7, §6 "discovery protocol kind, discovery periods").
type Discovery struct {
	// Kind names the SPDP variant: "simple" (default), "client",
	// "server", or "static". participant.New does not read it: every
	// Participant runs the simple variant, and no client or server
	// role exists in discovery/pdp.
	Kind string `toml:"kind"`

	InitialPeers []string `toml:"initial_peers"`

	LeaseDuration         Duration `toml:"lease_duration"`
	AnnouncementPeriod    Duration `toml:"announcement_period"`
}

// Writer configures one statically-declared DataWriter (spec.md §6
// "Endpoint attributes").
type Writer struct {
	Topic    string `toml:"topic"`
	TypeName string `toml:"type_name"`

	Durability        string   `toml:"durability"`         // VOLATILE|TRANSIENT_LOCAL|TRANSIENT|PERSISTENT
	Reliability       string   `toml:"reliability"`        // BEST_EFFORT|RELIABLE
	Liveliness        string   `toml:"liveliness"`         // AUTOMATIC|MANUAL_BY_PARTICIPANT|MANUAL_BY_TOPIC
	LeaseDuration     Duration `toml:"lease_duration"`
	HeartbeatPeriod   Duration `toml:"heartbeat_period"` // 0 => endpoint.DefaultHeartbeatPeriod
	HistoryKind       string   `toml:"history_kind"`       // KEEP_LAST|KEEP_ALL
	HistoryDepth      int      `toml:"history_depth"`
	MaxSamples        int      `toml:"max_samples"`
	MaxInstances      int      `toml:"max_instances"`
	Partitions        []string `toml:"partitions"`

	AsynchronousPublishMode bool `toml:"asynchronous_publish_mode"`
	ThroughputBytesPerPeriod  int `toml:"throughput_bytes_per_period"`
	ThroughputPeriodMillisecs int `toml:"throughput_period_millisecs"`
}

// Reader configures one statically-declared DataReader.
type Reader struct {
	Topic    string `toml:"topic"`
	TypeName string `toml:"type_name"`

	Durability    string   `toml:"durability"`
	Reliability   string   `toml:"reliability"`
	Liveliness    string   `toml:"liveliness"`
	LeaseDuration Duration `toml:"lease_duration"`
	HistoryKind   string   `toml:"history_kind"`
	HistoryDepth  int      `toml:"history_depth"`
	MaxSamples    int      `toml:"max_samples"`
	MaxInstances  int      `toml:"max_instances"`
	Partitions    []string `toml:"partitions"`

	// DisablePositiveAcks/AcksKeepDuration announce this reader's
	// PID_DISABLE_POSITIVE_ACKS policy (spec.md §12): a matched writer
	// stops waiting on an ACKNACK for one of its changes once
	// AcksKeepDuration has elapsed since sending it, and this reader
	// itself stops sending a positive (nothing-missing) ACKNACK.
	DisablePositiveAcks bool     `toml:"disable_positive_acks"`
	AcksKeepDuration    Duration `toml:"acks_keep_duration"`
}

// Duration is a time.Duration that decodes from TOML as a Go duration
// string ("20s", "100ms").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler, which
// BurntSushi/toml calls for any string-keyed value whose Go type
// implements it.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Load decodes a Participant configuration from a TOML file at path.
func Load(path string) (*Participant, error) {
	var p Participant
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &p, nil
}

// Parse decodes a Participant configuration from a TOML string, for
// embedding a config inline (tests, single-binary deployments).
func Parse(data string) (*Participant, error) {
	var p Participant
	if _, err := toml.Decode(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &p, nil
}

// ResolveLocators parses every configured "host:port" string into a
// locator.Locator, validating DNS-style hostnames via
// locator.ValidateHostname (spec.md §6 STATIC/CLIENT-SERVER initial
// peers) before resolving and converting via locator.FromUDPAddr.
func ResolveLocators(addrs []string) ([]locator.Locator, error) {
	out := make([]locator.Locator, 0, len(addrs))
	for _, a := range addrs {
		host, _, err := net.SplitHostPort(a)
		if err != nil {
			return nil, fmt.Errorf("config: locator %q: %w", a, err)
		}
		if net.ParseIP(host) == nil {
			if err := locator.ValidateHostname(host); err != nil {
				return nil, fmt.Errorf("config: locator %q: %w", a, err)
			}
		}
		udpAddr, err := net.ResolveUDPAddr("udp", a)
		if err != nil {
			return nil, fmt.Errorf("config: locator %q: %w", a, err)
		}
		loc, err := locator.FromUDPAddr(udpAddr)
		if err != nil {
			return nil, fmt.Errorf("config: locator %q: %w", a, err)
		}
		out = append(out, loc)
	}
	return out, nil
}

// DurabilityKind parses a Writer/Reader Durability string, defaulting
// to VOLATILE for an empty value.
func DurabilityKind(s string) (qos.DurabilityKind, error) {
	switch s {
	case "", "VOLATILE":
		return qos.Volatile, nil
	case "TRANSIENT_LOCAL":
		return qos.TransientLocal, nil
	case "TRANSIENT":
		return qos.Transient, nil
	case "PERSISTENT":
		return qos.Persistent, nil
	default:
		return 0, fmt.Errorf("config: unknown durability %q", s)
	}
}

// ReliabilityKind parses a Writer/Reader Reliability string.
func ReliabilityKind(s string) (qos.ReliabilityKind, error) {
	switch s {
	case "", "BEST_EFFORT":
		return qos.BestEffort, nil
	case "RELIABLE":
		return qos.Reliable, nil
	default:
		return 0, fmt.Errorf("config: unknown reliability %q", s)
	}
}

// LivelinessKind parses a Writer/Reader Liveliness string.
func LivelinessKind(s string) (qos.LivelinessKind, error) {
	switch s {
	case "", "AUTOMATIC":
		return qos.Automatic, nil
	case "MANUAL_BY_PARTICIPANT":
		return qos.ManualByParticipant, nil
	case "MANUAL_BY_TOPIC":
		return qos.ManualByTopic, nil
	default:
		return 0, fmt.Errorf("config: unknown liveliness %q", s)
	}
}

// HistoryKind parses a Writer/Reader HistoryKind string, defaulting to
// KEEP_LAST.
func HistoryKind(s string) (qos.HistoryKind, error) {
	switch s {
	case "", "KEEP_LAST":
		return qos.KeepLast, nil
	case "KEEP_ALL":
		return qos.KeepAll, nil
	default:
		return 0, fmt.Errorf("config: unknown history kind %q", s)
	}
}

// WriterQoS builds a qos.WriterQoS from a Writer configuration block,
// starting from qos.DefaultWriterQoS() and overriding whatever the
// config sets explicitly.
func (w Writer) WriterQoS() (qos.WriterQoS, error) {
	q := qos.DefaultWriterQoS()
	var err error
	if q.Durability, err = DurabilityKind(w.Durability); err != nil {
		return q, err
	}
	if q.Reliability.Kind, err = ReliabilityKind(w.Reliability); err != nil {
		return q, err
	}
	if q.Liveliness.Kind, err = LivelinessKind(w.Liveliness); err != nil {
		return q, err
	}
	q.Liveliness.LeaseDuration = w.LeaseDuration.Duration()
	if q.History.Kind, err = HistoryKind(w.HistoryKind); err != nil {
		return q, err
	}
	if w.HistoryDepth > 0 {
		q.History.Depth = w.HistoryDepth
	}
	q.ResourceLimits.MaxSamples = w.MaxSamples
	q.ResourceLimits.MaxInstances = w.MaxInstances
	q.Partition.Names = w.Partitions
	return q, nil
}

// ReaderQoS builds a qos.ReaderQoS from a Reader configuration block.
func (r Reader) ReaderQoS() (qos.ReaderQoS, error) {
	q := qos.DefaultReaderQoS()
	var err error
	if q.Durability, err = DurabilityKind(r.Durability); err != nil {
		return q, err
	}
	if q.Reliability.Kind, err = ReliabilityKind(r.Reliability); err != nil {
		return q, err
	}
	q.Reliability.DisablePositiveACKs = r.DisablePositiveAcks
	q.Reliability.DisableACKsKeepDuration = r.AcksKeepDuration.Duration()
	if q.Liveliness.Kind, err = LivelinessKind(r.Liveliness); err != nil {
		return q, err
	}
	q.Liveliness.LeaseDuration = r.LeaseDuration.Duration()
	if q.History.Kind, err = HistoryKind(r.HistoryKind); err != nil {
		return q, err
	}
	if r.HistoryDepth > 0 {
		q.History.Depth = r.HistoryDepth
	}
	q.ResourceLimits.MaxSamples = r.MaxSamples
	q.ResourceLimits.MaxInstances = r.MaxInstances
	q.Partition.Names = r.Partitions
	return q, nil
}
