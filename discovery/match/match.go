// Package match implements the SEDP writer/reader compatibility rule
// of spec.md §4.8 "Matching": topic and type name equality plus QoS
// offer/request compatibility (durability, reliability, deadline,
// liveliness, partition).
package match

import (
	"github.com/rtps-go/rtps/core/qos"
)

// IncompatibleReason is a bitmask of which policy pair failed
// compatibility, reported to the WriterListener/ReaderListener with
// QoSIncompatible (spec.md §7 "QoSIncompatible").
type IncompatibleReason uint32

const (
	Durability IncompatibleReason = 1 << iota
	Reliability
	Deadline
	Liveliness
	Partition
	TopicOrType
)

// Candidate bundles the fields of a WriterProxyData/ReaderProxyData
// that matching actually compares, so the same function serves both
// sides of spec.md §4.8's symmetric rule.
type Candidate struct {
	TopicName string
	TypeName  string
	Durability qos.DurabilityKind
	Reliability qos.Reliability
	Deadline   qos.Deadline
	Liveliness qos.Liveliness
	Partition  qos.Partition
}

// Writer matches a WriterQoS onto a Candidate.
func Writer(topic, typeName string, w qos.WriterQoS) Candidate {
	return Candidate{
		TopicName: topic, TypeName: typeName,
		Durability: w.Durability, Reliability: w.Reliability,
		Deadline: w.Deadline, Liveliness: w.Liveliness, Partition: w.Partition,
	}
}

// Reader matches a ReaderQoS onto a Candidate.
func Reader(topic, typeName string, r qos.ReaderQoS) Candidate {
	return Candidate{
		TopicName: topic, TypeName: typeName,
		Durability: r.Durability, Reliability: r.Reliability,
		Deadline: r.Deadline, Liveliness: r.Liveliness, Partition: r.Partition,
	}
}

// Check evaluates whether offered (a writer) satisfies requested (a
// reader), per spec.md §4.8's rule: topic/type equal; Durability
// offered >= requested; Reliability offered >= requested; Deadline
// offered.period <= requested.period; Liveliness kind offered >=
// requested and lease_duration offered <= requested; partitions
// intersect. Returns true plus a zero mask on full compatibility, or
// false plus a bitmask naming every failing policy.
func Check(offered, requested Candidate) (bool, IncompatibleReason) {
	var reason IncompatibleReason

	if offered.TopicName != requested.TopicName || offered.TypeName != requested.TypeName {
		reason |= TopicOrType
	}
	if !offered.Durability.GreaterOrEqual(requested.Durability) {
		reason |= Durability
	}
	if !offered.Reliability.Kind.GreaterOrEqual(requested.Reliability.Kind) {
		reason |= Reliability
	}
	if requested.Deadline.Period > 0 {
		if offered.Deadline.Period == 0 || offered.Deadline.Period > requested.Deadline.Period {
			reason |= Deadline
		}
	}
	if !offered.Liveliness.Kind.GreaterOrEqual(requested.Liveliness.Kind) {
		reason |= Liveliness
	} else if requested.Liveliness.LeaseDuration > 0 && offered.Liveliness.LeaseDuration > requested.Liveliness.LeaseDuration {
		reason |= Liveliness
	}
	if !offered.Partition.Intersects(requested.Partition) {
		reason |= Partition
	}

	return reason == 0, reason
}
