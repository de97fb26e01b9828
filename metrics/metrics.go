// Package metrics exposes the spec.md §11 observability surface
// (matched-proxy counts, heartbeat/acknack/gap traffic, cache
// occupancy) through github.com/prometheus/client_golang's
// counter/gauge-vector idiom.
//
// Unlike promauto's package-level default-registry globals, Metrics
// owns its own prometheus.Registry so multiple Participants (or
// parallel tests) in one process never collide registering the same
// metric name twice.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelEntityKind = "entity_kind" // "writer" | "reader"
)

// Metrics bundles every counter/gauge a Participant updates over its
// lifetime, backed by a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	MatchedProxies   *prometheus.GaugeVec
	Heartbeats       *prometheus.CounterVec
	AckNacks         *prometheus.CounterVec
	Gaps             *prometheus.CounterVec
	SamplesSent      *prometheus.CounterVec
	SamplesDelivered *prometheus.CounterVec
	CacheOccupancy   *prometheus.GaugeVec
	LivelinessAsserted prometheus.Counter
	LivelinessLost     *prometheus.CounterVec
}

// New creates a Metrics bundle and registers every collector with a
// fresh prometheus.Registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		MatchedProxies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rtps",
			Name:      "matched_proxies",
			Help:      "Number of remote proxies currently matched to a local endpoint.",
		}, []string{labelEntityKind, "topic"}),
		Heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtps",
			Name:      "heartbeats_total",
			Help:      "HEARTBEAT submessages sent or received.",
		}, []string{"direction", "topic"}),
		AckNacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtps",
			Name:      "acknacks_total",
			Help:      "ACKNACK submessages sent or received.",
		}, []string{"direction", "topic"}),
		Gaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtps",
			Name:      "gaps_total",
			Help:      "GAP submessages sent or received.",
		}, []string{"direction", "topic"}),
		SamplesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtps",
			Name:      "samples_sent_total",
			Help:      "Samples written by a local DataWriter.",
		}, []string{"topic"}),
		SamplesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtps",
			Name:      "samples_delivered_total",
			Help:      "Samples delivered to a local DataReader's application.",
		}, []string{"topic"}),
		CacheOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rtps",
			Name:      "cache_occupancy",
			Help:      "Number of CacheChanges currently held by a HistoryCache.",
		}, []string{labelEntityKind, "topic"}),
		LivelinessAsserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtps",
			Name:      "liveliness_asserted_total",
			Help:      "ParticipantMessageData liveliness assertions sent by WLP.",
		}),
		LivelinessLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtps",
			Name:      "liveliness_lost_total",
			Help:      "Remote writers declared not-alive due to lease expiry.",
		}, []string{"topic"}),
	}
	reg.MustRegister(
		m.MatchedProxies, m.Heartbeats, m.AckNacks, m.Gaps,
		m.SamplesSent, m.SamplesDelivered, m.CacheOccupancy,
		m.LivelinessAsserted, m.LivelinessLost,
	)
	return m
}

// Direction labels for the Heartbeats/AckNacks/Gaps counter vectors.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// EntityKind labels for MatchedProxies/CacheOccupancy.
const (
	EntityWriter = "writer"
	EntityReader = "reader"
)
