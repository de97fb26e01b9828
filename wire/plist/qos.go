package plist

import (
	"encoding/binary"
	"time"

	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/wire/cdr"
)

// Durability PIDs use a single uint32 kind.
func encodeDurability(kind qos.DurabilityKind) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(kind))
	return b
}

func decodeDurability(b []byte) qos.DurabilityKind {
	if len(b) < 4 {
		return qos.Volatile
	}
	return qos.DurabilityKind(binary.LittleEndian.Uint32(b))
}

// durationBytes encodes a DDS Duration_t: { sec:int32, nanosec:uint32 }.
func durationBytes(d time.Duration) []byte {
	b := make([]byte, 8)
	sec := int32(d / time.Second)
	nsec := uint32(d % time.Second)
	binary.LittleEndian.PutUint32(b[0:], uint32(sec))
	binary.LittleEndian.PutUint32(b[4:], nsec)
	return b
}

func durationFromBytes(b []byte) time.Duration {
	if len(b) < 8 {
		return 0
	}
	sec := int32(binary.LittleEndian.Uint32(b[0:]))
	nsec := binary.LittleEndian.Uint32(b[4:])
	return time.Duration(sec)*time.Second + time.Duration(nsec)
}

func encodeReliability(r qos.Reliability) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:], uint32(r.Kind))
	copy(b[4:], durationBytes(r.MaxBlockingTime))
	return b
}

func decodeReliability(b []byte) qos.Reliability {
	var r qos.Reliability
	if len(b) < 12 {
		return r
	}
	r.Kind = qos.ReliabilityKind(binary.LittleEndian.Uint32(b[0:]))
	r.MaxBlockingTime = durationFromBytes(b[4:12])
	return r
}

func encodeLiveliness(l qos.Liveliness) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:], uint32(l.Kind))
	copy(b[4:], durationBytes(l.LeaseDuration))
	return b
}

func decodeLiveliness(b []byte) qos.Liveliness {
	var l qos.Liveliness
	if len(b) < 12 {
		return l
	}
	l.Kind = qos.LivelinessKind(binary.LittleEndian.Uint32(b[0:]))
	l.LeaseDuration = durationFromBytes(b[4:12])
	return l
}

func encodeHistory(h qos.History) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], uint32(h.Kind))
	binary.LittleEndian.PutUint32(b[4:], uint32(h.Depth))
	return b
}

func decodeHistory(b []byte) qos.History {
	var h qos.History
	if len(b) < 8 {
		return h
	}
	h.Kind = qos.HistoryKind(binary.LittleEndian.Uint32(b[0:]))
	h.Depth = int(int32(binary.LittleEndian.Uint32(b[4:])))
	return h
}

func encodeResourceLimits(r qos.ResourceLimits) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:], uint32(r.MaxSamples))
	binary.LittleEndian.PutUint32(b[4:], uint32(r.MaxInstances))
	binary.LittleEndian.PutUint32(b[8:], uint32(r.MaxSamplesPerInstance))
	return b
}

func decodeResourceLimits(b []byte) qos.ResourceLimits {
	var r qos.ResourceLimits
	if len(b) < 12 {
		return r
	}
	r.MaxSamples = int(int32(binary.LittleEndian.Uint32(b[0:])))
	r.MaxInstances = int(int32(binary.LittleEndian.Uint32(b[4:])))
	r.MaxSamplesPerInstance = int(int32(binary.LittleEndian.Uint32(b[8:])))
	return r
}

func encodePartition(p qos.Partition) []byte {
	w := cdr.NewWriter(cdr.LittleEndian, 0)
	w.PutUint32(uint32(len(p.Names)))
	for _, n := range p.Names {
		w.PutString(n)
	}
	return w.Bytes()
}

func decodePartition(b []byte) qos.Partition {
	r := cdr.NewReader(b, cdr.LittleEndian, 0)
	n, err := r.GetUint32()
	if err != nil {
		return qos.Partition{}
	}
	var p qos.Partition
	for i := uint32(0); i < n; i++ {
		s, err := r.GetString()
		if err != nil {
			break
		}
		p.Names = append(p.Names, s)
	}
	return p
}

// EncodeWriterQoS appends a writer's QoS policies to l as parameters.
func EncodeWriterQoS(l *List, w qos.WriterQoS) {
	l.Add(PIDDurability, encodeDurability(w.Durability))
	l.Add(PIDReliability, encodeReliability(w.Reliability))
	l.Add(PIDLiveliness, encodeLiveliness(w.Liveliness))
	l.Add(PIDHistory, encodeHistory(w.History))
	l.Add(PIDResourceLimits, encodeResourceLimits(w.ResourceLimits))
	if len(w.Partition.Names) > 0 {
		l.Add(PIDPartition, encodePartition(w.Partition))
	}
	if len(w.UserData) > 0 {
		l.Add(PIDUserData, w.UserData)
	}
	strength := make([]byte, 4)
	binary.LittleEndian.PutUint32(strength, uint32(w.OwnershipStrength))
	l.Add(PIDOwnershipStrength, strength)
	if w.Reliability.DisablePositiveACKs {
		l.Add(PIDDisablePositiveACKs, []byte{1, 0, 0, 0})
	}
}

// DecodeWriterQoS reconstructs WriterQoS from a decoded ParameterList,
// starting from defaults for any PID not present (spec.md §4.1:
// "Unknown PIDs must be skipped... never rejecting the message").
func DecodeWriterQoS(l *List) qos.WriterQoS {
	w := qos.DefaultWriterQoS()
	if p, ok := l.Get(PIDDurability); ok {
		w.Durability = decodeDurability(p.Value)
	}
	if p, ok := l.Get(PIDReliability); ok {
		w.Reliability = decodeReliability(p.Value)
	}
	if p, ok := l.Get(PIDLiveliness); ok {
		w.Liveliness = decodeLiveliness(p.Value)
	}
	if p, ok := l.Get(PIDHistory); ok {
		w.History = decodeHistory(p.Value)
	}
	if p, ok := l.Get(PIDResourceLimits); ok {
		w.ResourceLimits = decodeResourceLimits(p.Value)
	}
	if p, ok := l.Get(PIDPartition); ok {
		w.Partition = decodePartition(p.Value)
	}
	if p, ok := l.Get(PIDUserData); ok {
		w.UserData = p.Value
	}
	if p, ok := l.Get(PIDOwnershipStrength); ok && len(p.Value) >= 4 {
		w.OwnershipStrength = int32(binary.LittleEndian.Uint32(p.Value))
	}
	if _, ok := l.Get(PIDDisablePositiveACKs); ok {
		w.Reliability.DisablePositiveACKs = true
	}
	return w
}

// EncodeReaderQoS appends a reader's QoS policies to l as parameters.
func EncodeReaderQoS(l *List, r qos.ReaderQoS) {
	l.Add(PIDDurability, encodeDurability(r.Durability))
	l.Add(PIDReliability, encodeReliability(r.Reliability))
	l.Add(PIDLiveliness, encodeLiveliness(r.Liveliness))
	l.Add(PIDHistory, encodeHistory(r.History))
	l.Add(PIDResourceLimits, encodeResourceLimits(r.ResourceLimits))
	if len(r.Partition.Names) > 0 {
		l.Add(PIDPartition, encodePartition(r.Partition))
	}
	if len(r.UserData) > 0 {
		l.Add(PIDUserData, r.UserData)
	}
}

// DecodeReaderQoS reconstructs ReaderQoS from a decoded ParameterList.
func DecodeReaderQoS(l *List) qos.ReaderQoS {
	r := qos.DefaultReaderQoS()
	if p, ok := l.Get(PIDDurability); ok {
		r.Durability = decodeDurability(p.Value)
	}
	if p, ok := l.Get(PIDReliability); ok {
		r.Reliability = decodeReliability(p.Value)
	}
	if p, ok := l.Get(PIDLiveliness); ok {
		r.Liveliness = decodeLiveliness(p.Value)
	}
	if p, ok := l.Get(PIDHistory); ok {
		r.History = decodeHistory(p.Value)
	}
	if p, ok := l.Get(PIDResourceLimits); ok {
		r.ResourceLimits = decodeResourceLimits(p.Value)
	}
	if p, ok := l.Get(PIDPartition); ok {
		r.Partition = decodePartition(p.Value)
	}
	if p, ok := l.Get(PIDUserData); ok {
		r.UserData = p.Value
	}
	return r
}
