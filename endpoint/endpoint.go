// Package endpoint implements the four RTPS endpoint kinds of
// spec.md §4.3/§4.4/§4.5: StatelessWriter, StatefulWriter,
// StatelessReader, StatefulReader. Heartbeat and nack-response timers
// run as a plain goroutine-plus-time.After loop per endpoint — spec.md
// §9 models timed events as a participant-level min-heap scheduler,
// built in the `scheduler` package and wired in by `participant`, but
// individual endpoints here keep their own local timer loop rather
// than taking a scheduler dependency.
package endpoint

import (
	"time"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/history"
	"github.com/rtps-go/rtps/wire/submsg"
)

// Default timer values (spec.md §4.4, §4.5).
const (
	DefaultHeartbeatPeriod          = 3 * time.Second
	DefaultNackSuppressionDuration  = 0
	DefaultHeartbeatResponseDelay   = 5 * time.Millisecond
)

// WriterAttributes configures a writer endpoint.
type WriterAttributes struct {
	GUID                     guid.GUID
	TopicName                string
	TypeName                 string
	QoS                      qos.WriterQoS
	HeartbeatPeriod          time.Duration
	NackSuppressionDuration  time.Duration
	PushMode                 bool // false => a HEARTBEAT is forced right after add_change
}

// ReaderAttributes configures a reader endpoint.
type ReaderAttributes struct {
	GUID                   guid.GUID
	TopicName              string
	TypeName               string
	QoS                    qos.ReaderQoS
	HeartbeatResponseDelay time.Duration
}

// WriterListener receives match/QoS notifications for a writer
// (spec.md §9 "small capability sets").
type WriterListener interface {
	OnMatched(remote guid.GUID)
	OnUnmatched(remote guid.GUID)
	OnIncompatibleQoS(remote guid.GUID)
}

// ReaderListener receives data/match/liveliness notifications for a
// reader.
type ReaderListener interface {
	OnDataAvailable(c *history.CacheChange)
	OnMatched(remote guid.GUID)
	OnUnmatched(remote guid.GUID)
	OnLivelinessChanged(remote guid.GUID, alive bool)
}

// NopWriterListener and NopReaderListener are embeddable
// do-nothing listeners for callers that only care about some events.
type NopWriterListener struct{}

func (NopWriterListener) OnMatched(guid.GUID)         {}
func (NopWriterListener) OnUnmatched(guid.GUID)       {}
func (NopWriterListener) OnIncompatibleQoS(guid.GUID) {}

type NopReaderListener struct{}

func (NopReaderListener) OnDataAvailable(*history.CacheChange)    {}
func (NopReaderListener) OnMatched(guid.GUID)                     {}
func (NopReaderListener) OnUnmatched(guid.GUID)                   {}
func (NopReaderListener) OnLivelinessChanged(guid.GUID, bool) {}

// buildMessageHeader constructs the RTPS message header sourced from
// self.
func buildMessageHeader(self guid.GUID) submsg.Header {
	return submsg.Header{
		Version:    submsg.Version22,
		Vendor:     submsg.VendorUnknown,
		GuidPrefix: self.Prefix,
	}
}

// fragmentPayload splits data into chunks of at most fragmentSize
// bytes, returning the chunks in order (spec.md §4.4
// "Fragmentation").
func fragmentPayload(data []byte, fragmentSize int) [][]byte {
	if fragmentSize <= 0 || len(data) <= fragmentSize {
		return [][]byte{data}
	}
	var out [][]byte
	for off := 0; off < len(data); off += fragmentSize {
		end := off + fragmentSize
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[off:end])
	}
	return out
}
