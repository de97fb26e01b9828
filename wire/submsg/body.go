package submsg

import (
	"time"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/seqnum"
	"github.com/rtps-go/rtps/wire/cdr"
	"github.com/rtps-go/rtps/wire/plist"
)

// Timestamp is an RTPS Time_t: { seconds: int32, fraction: uint32 }
// where fraction counts 1/2^32 of a second, per spec.md §4.1 INFO_TS.
type Timestamp struct {
	Seconds  int32
	Fraction uint32
}

// TimeInvalid is the sentinel value INFO_TS uses for "no timestamp".
var TimeInvalid = Timestamp{Seconds: -1, Fraction: 0xffffffff}

func FromTime(t time.Time) Timestamp {
	sec := t.Unix()
	nsec := t.Nanosecond()
	frac := uint64(nsec) << 32 / 1e9
	return Timestamp{Seconds: int32(sec), Fraction: uint32(frac)}
}

func (t Timestamp) Time() time.Time {
	nsec := (uint64(t.Fraction) * 1e9) >> 32
	return time.Unix(int64(t.Seconds), int64(nsec))
}

// Encapsulation identifies the payload representation carried inside a
// DATA submessage's serializedData (spec.md §4.1 "encapsulation
// header").
type Encapsulation uint16

const (
	EncapCDR_BE   Encapsulation = 0x0000
	EncapCDR_LE   Encapsulation = 0x0001
	EncapPLCDR_BE Encapsulation = 0x0002
	EncapPLCDR_LE Encapsulation = 0x0003
)

// SerializedPayload bundles the 4-byte encapsulation header with the
// raw serialized sample bytes that follow it.
type SerializedPayload struct {
	Encapsulation Encapsulation
	Data          []byte
}

func encodeSerializedPayload(w *cdr.Writer, p SerializedPayload) {
	w.Align(4)
	w.PutUint16(uint16(p.Encapsulation))
	w.PutUint16(0) // encapsulation options, unused
	w.PutBytes(p.Data)
}

func decodeSerializedPayload(r *cdr.Reader) (SerializedPayload, error) {
	var p SerializedPayload
	enc, err := r.GetUint16()
	if err != nil {
		return p, err
	}
	if _, err := r.GetUint16(); err != nil {
		return p, err
	}
	p.Encapsulation = Encapsulation(enc)
	rest, err := r.GetBytes(r.Remaining())
	if err != nil {
		return p, err
	}
	p.Data = append([]byte(nil), rest...)
	return p, nil
}

// Data flags (spec.md §4.1 "DATA submessage body").
const (
	FlagDataEndianness uint8 = 1 << 0
	FlagDataInlineQoS  uint8 = 1 << 1
	FlagDataHasData    uint8 = 1 << 2
	FlagDataHasKey     uint8 = 1 << 3
)

// Data carries one CacheChange's content (spec.md §4.1 "DATA
// submessage body").
type Data struct {
	ReaderID        guid.EntityID
	WriterID        guid.EntityID
	WriterSN        seqnum.SequenceNumber
	InlineQoS       *plist.List
	SerializedData  *SerializedPayload
	KeyHash         []byte // present when neither data nor inline key is carried
}

func EncodeData(order cdr.Endian, origin int, d Data) (SubHeader, []byte) {
	w := cdr.NewWriter(order, origin+4)
	w.PutUint16(0) // extraFlags, unused
	octetsToInlineQosPos := w.Len()
	w.PutUint16(0) // placeholder for octetsToInlineQos
	w.PutBytes(d.ReaderID[:])
	w.PutBytes(d.WriterID[:])
	w.PutInt64(int64(d.WriterSN))

	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= FlagDataEndianness
	}

	afterSN := w.Len()
	binaryPutUint16At(w, octetsToInlineQosPos, uint16(afterSN-octetsToInlineQosPos-2))

	if d.InlineQoS != nil {
		flags |= FlagDataInlineQoS
		plist.Encode(w, d.InlineQoS)
	}
	if d.SerializedData != nil {
		flags |= FlagDataHasData
		encodeSerializedPayload(w, *d.SerializedData)
	} else if len(d.KeyHash) > 0 {
		flags |= FlagDataHasKey
		kh := SerializedPayload{Encapsulation: EncapPLCDR_LE, Data: d.KeyHash}
		encodeSerializedPayload(w, kh)
	}

	return SubHeader{Kind: KindData, Flags: flags, Length: uint16(w.Len())}, w.Bytes()
}

// binaryPutUint16At overwrites two bytes already written to w's buffer;
// used for the octetsToInlineQos field, which must be computed after
// the reader/writer ids and sequence number are laid down.
func binaryPutUint16At(w *cdr.Writer, pos int, v uint16) {
	buf := w.Bytes()
	if pos+2 > len(buf) {
		return
	}
	if w.OrderIsLittleEndian() {
		buf[pos] = byte(v)
		buf[pos+1] = byte(v >> 8)
	} else {
		buf[pos] = byte(v >> 8)
		buf[pos+1] = byte(v)
	}
}

func DecodeData(flags uint8, body []byte, origin int) (Data, error) {
	order := endianFromFlags(flags)
	r := cdr.NewReader(body, order, origin)
	if _, err := r.GetUint16(); err != nil { // extraFlags
		return Data{}, err
	}
	octetsToInlineQos, err := r.GetUint16()
	if err != nil {
		return Data{}, err
	}
	var d Data
	rid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return Data{}, err
	}
	copy(d.ReaderID[:], rid)
	wid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return Data{}, err
	}
	copy(d.WriterID[:], wid)
	sn, err := r.GetInt64()
	if err != nil {
		return Data{}, err
	}
	d.WriterSN = seqnum.SequenceNumber(sn)

	consumed := guid.EntityIDLength*2 + 8
	if skip := int(octetsToInlineQos) - consumed; skip > 0 {
		if _, err := r.GetBytes(skip); err != nil {
			return Data{}, err
		}
	}

	if flags&FlagDataInlineQoS != 0 {
		l, err := plist.Decode(r)
		if err != nil {
			return Data{}, err
		}
		d.InlineQoS = l
	}
	if flags&FlagDataHasData != 0 {
		p, err := decodeSerializedPayload(r)
		if err != nil {
			return Data{}, err
		}
		d.SerializedData = &p
	} else if flags&FlagDataHasKey != 0 {
		p, err := decodeSerializedPayload(r)
		if err != nil {
			return Data{}, err
		}
		d.KeyHash = p.Data
	}
	return d, nil
}

// DataFrag carries one fragment of a large CacheChange (spec.md §4.6
// "Fragmentation").
type DataFrag struct {
	ReaderID          guid.EntityID
	WriterID          guid.EntityID
	WriterSN          seqnum.SequenceNumber
	FragmentStartingNum uint32 // 1-based
	FragmentsInSubmessage uint16
	FragmentSize      uint16
	SampleSize        uint32
	InlineQoS         *plist.List
	SerializedData    []byte
}

const (
	FlagDataFragEndianness uint8 = 1 << 0
	FlagDataFragInlineQoS  uint8 = 1 << 1
	FlagDataFragHasKey     uint8 = 1 << 2
)

func EncodeDataFrag(order cdr.Endian, origin int, d DataFrag) (SubHeader, []byte) {
	w := cdr.NewWriter(order, origin+4)
	w.PutUint16(0)
	octetsToInlineQosPos := w.Len()
	w.PutUint16(0)
	w.PutBytes(d.ReaderID[:])
	w.PutBytes(d.WriterID[:])
	w.PutInt64(int64(d.WriterSN))
	w.PutUint32(d.FragmentStartingNum)
	w.PutUint16(d.FragmentsInSubmessage)
	w.PutUint16(d.FragmentSize)
	w.PutUint32(d.SampleSize)

	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= FlagDataFragEndianness
	}
	afterFixed := w.Len()
	binaryPutUint16At(w, octetsToInlineQosPos, uint16(afterFixed-octetsToInlineQosPos-2))

	if d.InlineQoS != nil {
		flags |= FlagDataFragInlineQoS
		plist.Encode(w, d.InlineQoS)
	}
	w.PutBytes(d.SerializedData)

	return SubHeader{Kind: KindDataFrag, Flags: flags, Length: uint16(w.Len())}, w.Bytes()
}

func DecodeDataFrag(flags uint8, body []byte, origin int) (DataFrag, error) {
	order := endianFromFlags(flags)
	r := cdr.NewReader(body, order, origin)
	if _, err := r.GetUint16(); err != nil {
		return DataFrag{}, err
	}
	octetsToInlineQos, err := r.GetUint16()
	if err != nil {
		return DataFrag{}, err
	}
	var d DataFrag
	rid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return DataFrag{}, err
	}
	copy(d.ReaderID[:], rid)
	wid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return DataFrag{}, err
	}
	copy(d.WriterID[:], wid)
	sn, err := r.GetInt64()
	if err != nil {
		return DataFrag{}, err
	}
	d.WriterSN = seqnum.SequenceNumber(sn)
	d.FragmentStartingNum, err = r.GetUint32()
	if err != nil {
		return DataFrag{}, err
	}
	d.FragmentsInSubmessage, err = r.GetUint16()
	if err != nil {
		return DataFrag{}, err
	}
	d.FragmentSize, err = r.GetUint16()
	if err != nil {
		return DataFrag{}, err
	}
	d.SampleSize, err = r.GetUint32()
	if err != nil {
		return DataFrag{}, err
	}

	consumed := guid.EntityIDLength*2 + 8 + 4 + 2 + 2 + 4
	if skip := int(octetsToInlineQos) - consumed; skip > 0 {
		if _, err := r.GetBytes(skip); err != nil {
			return DataFrag{}, err
		}
	}
	if flags&FlagDataFragInlineQoS != 0 {
		l, err := plist.Decode(r)
		if err != nil {
			return DataFrag{}, err
		}
		d.InlineQoS = l
	}
	rest, err := r.GetBytes(r.Remaining())
	if err != nil {
		return DataFrag{}, err
	}
	d.SerializedData = append([]byte(nil), rest...)
	return d, nil
}

// Heartbeat tells a reader the [firstSN, lastSN] range a writer's
// history currently covers (spec.md §4.1, §4.3).
type Heartbeat struct {
	ReaderID guid.EntityID
	WriterID guid.EntityID
	FirstSN  seqnum.SequenceNumber
	LastSN   seqnum.SequenceNumber
	Count    uint32
	Final    bool
	Liveliness bool
}

const (
	FlagHeartbeatEndianness uint8 = 1 << 0
	FlagHeartbeatFinal      uint8 = 1 << 1
	FlagHeartbeatLiveliness uint8 = 1 << 2
)

func EncodeHeartbeat(order cdr.Endian, origin int, h Heartbeat) (SubHeader, []byte) {
	w := cdr.NewWriter(order, origin+4)
	w.PutBytes(h.ReaderID[:])
	w.PutBytes(h.WriterID[:])
	w.PutInt64(int64(h.FirstSN))
	w.PutInt64(int64(h.LastSN))
	w.PutUint32(h.Count)

	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= FlagHeartbeatEndianness
	}
	if h.Final {
		flags |= FlagHeartbeatFinal
	}
	if h.Liveliness {
		flags |= FlagHeartbeatLiveliness
	}
	return SubHeader{Kind: KindHeartbeat, Flags: flags, Length: uint16(w.Len())}, w.Bytes()
}

func DecodeHeartbeat(flags uint8, body []byte, origin int) (Heartbeat, error) {
	order := endianFromFlags(flags)
	r := cdr.NewReader(body, order, origin)
	var h Heartbeat
	rid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return h, err
	}
	copy(h.ReaderID[:], rid)
	wid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return h, err
	}
	copy(h.WriterID[:], wid)
	first, err := r.GetInt64()
	if err != nil {
		return h, err
	}
	h.FirstSN = seqnum.SequenceNumber(first)
	last, err := r.GetInt64()
	if err != nil {
		return h, err
	}
	h.LastSN = seqnum.SequenceNumber(last)
	h.Count, err = r.GetUint32()
	if err != nil {
		return h, err
	}
	h.Final = flags&FlagHeartbeatFinal != 0
	h.Liveliness = flags&FlagHeartbeatLiveliness != 0
	return h, nil
}

// AckNack is a reader's acknowledgement/negative-acknowledgement of a
// writer's history (spec.md §4.1, §4.3).
type AckNack struct {
	ReaderID guid.EntityID
	WriterID guid.EntityID
	ReaderSNState *seqnum.SequenceNumberSet
	Count    uint32
	Final    bool
}

const (
	FlagAckNackEndianness uint8 = 1 << 0
	FlagAckNackFinal      uint8 = 1 << 1
)

func EncodeAckNack(order cdr.Endian, origin int, a AckNack) (SubHeader, []byte) {
	w := cdr.NewWriter(order, origin+4)
	w.PutBytes(a.ReaderID[:])
	w.PutBytes(a.WriterID[:])
	encodeSequenceNumberSet(w, a.ReaderSNState)
	w.PutUint32(a.Count)

	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= FlagAckNackEndianness
	}
	if a.Final {
		flags |= FlagAckNackFinal
	}
	return SubHeader{Kind: KindAckNack, Flags: flags, Length: uint16(w.Len())}, w.Bytes()
}

func DecodeAckNack(flags uint8, body []byte, origin int) (AckNack, error) {
	order := endianFromFlags(flags)
	r := cdr.NewReader(body, order, origin)
	var a AckNack
	rid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return a, err
	}
	copy(a.ReaderID[:], rid)
	wid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return a, err
	}
	copy(a.WriterID[:], wid)
	set, err := decodeSequenceNumberSet(r)
	if err != nil {
		return a, err
	}
	a.ReaderSNState = set
	a.Count, err = r.GetUint32()
	if err != nil {
		return a, err
	}
	a.Final = flags&FlagAckNackFinal != 0
	return a, nil
}

// encodeSequenceNumberSet writes the wire form: base (int64 as
// {high int32, low uint32}), numBits, then ceil(numBits/32) bitmap
// words.
func encodeSequenceNumberSet(w *cdr.Writer, s *seqnum.SequenceNumberSet) {
	base := int64(s.Base)
	w.PutInt32(int32(base >> 32))
	w.PutUint32(uint32(base))
	w.PutUint32(s.NumBits)
	for _, word := range s.Bits {
		w.PutUint32(word)
	}
}

func decodeSequenceNumberSet(r *cdr.Reader) (*seqnum.SequenceNumberSet, error) {
	hi, err := r.GetInt32()
	if err != nil {
		return nil, err
	}
	lo, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	base := seqnum.SequenceNumber(int64(hi)<<32 | int64(lo))
	numBits, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	s := seqnum.NewSet(base)
	s.NumBits = numBits
	words := int((numBits + 31) / 32)
	for i := 0; i < words; i++ {
		word, err := r.GetUint32()
		if err != nil {
			return nil, err
		}
		s.Bits = append(s.Bits, word)
	}
	return s, nil
}

// Gap tells a reader that a range of sequence numbers will never be
// delivered (spec.md §4.1, §4.3 irrelevance / instance disposal).
type Gap struct {
	ReaderID    guid.EntityID
	WriterID    guid.EntityID
	GapStart    seqnum.SequenceNumber
	GapList     *seqnum.SequenceNumberSet
}

const FlagGapEndianness uint8 = 1 << 0

func EncodeGap(order cdr.Endian, origin int, g Gap) (SubHeader, []byte) {
	w := cdr.NewWriter(order, origin+4)
	w.PutBytes(g.ReaderID[:])
	w.PutBytes(g.WriterID[:])
	gapStart := int64(g.GapStart)
	w.PutInt32(int32(gapStart >> 32))
	w.PutUint32(uint32(gapStart))
	encodeSequenceNumberSet(w, g.GapList)

	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= FlagGapEndianness
	}
	return SubHeader{Kind: KindGap, Flags: flags, Length: uint16(w.Len())}, w.Bytes()
}

func DecodeGap(flags uint8, body []byte, origin int) (Gap, error) {
	order := endianFromFlags(flags)
	r := cdr.NewReader(body, order, origin)
	var g Gap
	rid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return g, err
	}
	copy(g.ReaderID[:], rid)
	wid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return g, err
	}
	copy(g.WriterID[:], wid)
	hi, err := r.GetInt32()
	if err != nil {
		return g, err
	}
	lo, err := r.GetUint32()
	if err != nil {
		return g, err
	}
	g.GapStart = seqnum.SequenceNumber(int64(hi)<<32 | int64(lo))
	set, err := decodeSequenceNumberSet(r)
	if err != nil {
		return g, err
	}
	g.GapList = set
	return g, nil
}

// NackFrag requests retransmission of specific fragments of one
// sequence number (spec.md §4.6).
type NackFrag struct {
	ReaderID      guid.EntityID
	WriterID      guid.EntityID
	WriterSN      seqnum.SequenceNumber
	FragmentNumberState *FragmentNumberSet
	Count         uint32
}

const FlagNackFragEndianness uint8 = 1 << 0

// FragmentNumberSet mirrors SequenceNumberSet but with a uint32 base,
// used for per-fragment NACKs (spec.md §4.6).
type FragmentNumberSet struct {
	Base    uint32
	NumBits uint32
	Bits    []uint32
}

func NewFragmentNumberSet(base uint32) *FragmentNumberSet {
	return &FragmentNumberSet{Base: base}
}

func (s *FragmentNumberSet) Add(n uint32) {
	offset := n - s.Base
	if offset+1 > s.NumBits {
		s.NumBits = offset + 1
	}
	words := int((s.NumBits + 31) / 32)
	for len(s.Bits) < words {
		s.Bits = append(s.Bits, 0)
	}
	word, bit := offset/32, offset%32
	s.Bits[word] |= 1 << (31 - bit)
}

func (s *FragmentNumberSet) Contains(n uint32) bool {
	if n < s.Base {
		return false
	}
	offset := n - s.Base
	if offset >= s.NumBits {
		return false
	}
	word, bit := offset/32, offset%32
	if int(word) >= len(s.Bits) {
		return false
	}
	return s.Bits[word]&(1<<(31-bit)) != 0
}

// Each invokes fn once for every fragment number marked present.
func (s *FragmentNumberSet) Each(fn func(uint32)) {
	for i := uint32(0); i < s.NumBits; i++ {
		word, bit := i/32, i%32
		if int(word) < len(s.Bits) && s.Bits[word]&(1<<(31-bit)) != 0 {
			fn(s.Base + i)
		}
	}
}

func encodeFragmentNumberSet(w *cdr.Writer, s *FragmentNumberSet) {
	w.PutUint32(s.Base)
	w.PutUint32(s.NumBits)
	for _, word := range s.Bits {
		w.PutUint32(word)
	}
}

func decodeFragmentNumberSet(r *cdr.Reader) (*FragmentNumberSet, error) {
	base, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	numBits, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	s := NewFragmentNumberSet(base)
	s.NumBits = numBits
	words := int((numBits + 31) / 32)
	for i := 0; i < words; i++ {
		word, err := r.GetUint32()
		if err != nil {
			return nil, err
		}
		s.Bits = append(s.Bits, word)
	}
	return s, nil
}

func EncodeNackFrag(order cdr.Endian, origin int, n NackFrag) (SubHeader, []byte) {
	w := cdr.NewWriter(order, origin+4)
	w.PutBytes(n.ReaderID[:])
	w.PutBytes(n.WriterID[:])
	sn := int64(n.WriterSN)
	w.PutInt32(int32(sn >> 32))
	w.PutUint32(uint32(sn))
	encodeFragmentNumberSet(w, n.FragmentNumberState)
	w.PutUint32(n.Count)

	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= FlagNackFragEndianness
	}
	return SubHeader{Kind: KindNackFrag, Flags: flags, Length: uint16(w.Len())}, w.Bytes()
}

func DecodeNackFrag(flags uint8, body []byte, origin int) (NackFrag, error) {
	order := endianFromFlags(flags)
	r := cdr.NewReader(body, order, origin)
	var n NackFrag
	rid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return n, err
	}
	copy(n.ReaderID[:], rid)
	wid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return n, err
	}
	copy(n.WriterID[:], wid)
	hi, err := r.GetInt32()
	if err != nil {
		return n, err
	}
	lo, err := r.GetUint32()
	if err != nil {
		return n, err
	}
	n.WriterSN = seqnum.SequenceNumber(int64(hi)<<32 | int64(lo))
	set, err := decodeFragmentNumberSet(r)
	if err != nil {
		return n, err
	}
	n.FragmentNumberState = set
	n.Count, err = r.GetUint32()
	if err != nil {
		return n, err
	}
	return n, nil
}

// HeartbeatFrag tells a reader the highest fragment number available
// for a fragmented sample still being sent (spec.md §4.6).
type HeartbeatFrag struct {
	ReaderID        guid.EntityID
	WriterID        guid.EntityID
	WriterSN        seqnum.SequenceNumber
	LastFragmentNum uint32
	Count           uint32
}

const FlagHeartbeatFragEndianness uint8 = 1 << 0

func EncodeHeartbeatFrag(order cdr.Endian, origin int, h HeartbeatFrag) (SubHeader, []byte) {
	w := cdr.NewWriter(order, origin+4)
	w.PutBytes(h.ReaderID[:])
	w.PutBytes(h.WriterID[:])
	sn := int64(h.WriterSN)
	w.PutInt32(int32(sn >> 32))
	w.PutUint32(uint32(sn))
	w.PutUint32(h.LastFragmentNum)
	w.PutUint32(h.Count)

	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= FlagHeartbeatFragEndianness
	}
	return SubHeader{Kind: KindHeartbeatFrag, Flags: flags, Length: uint16(w.Len())}, w.Bytes()
}

func DecodeHeartbeatFrag(flags uint8, body []byte, origin int) (HeartbeatFrag, error) {
	order := endianFromFlags(flags)
	r := cdr.NewReader(body, order, origin)
	var h HeartbeatFrag
	rid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return h, err
	}
	copy(h.ReaderID[:], rid)
	wid, err := r.GetBytes(guid.EntityIDLength)
	if err != nil {
		return h, err
	}
	copy(h.WriterID[:], wid)
	hi, err := r.GetInt32()
	if err != nil {
		return h, err
	}
	lo, err := r.GetUint32()
	if err != nil {
		return h, err
	}
	h.WriterSN = seqnum.SequenceNumber(int64(hi)<<32 | int64(lo))
	h.LastFragmentNum, err = r.GetUint32()
	if err != nil {
		return h, err
	}
	h.Count, err = r.GetUint32()
	if err != nil {
		return h, err
	}
	return h, nil
}

// InfoTS carries a source timestamp applying to subsequent submessages
// in the same message (spec.md §4.1 INFO_TS).
type InfoTS struct {
	Invalid   bool
	Timestamp Timestamp
}

const FlagInfoTSEndianness uint8 = 1 << 0
const FlagInfoTSInvalidate uint8 = 1 << 1

func EncodeInfoTS(order cdr.Endian, origin int, t InfoTS) (SubHeader, []byte) {
	w := cdr.NewWriter(order, origin+4)
	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= FlagInfoTSEndianness
	}
	if t.Invalid {
		flags |= FlagInfoTSInvalidate
	} else {
		w.PutInt32(t.Timestamp.Seconds)
		w.PutUint32(t.Timestamp.Fraction)
	}
	return SubHeader{Kind: KindInfoTS, Flags: flags, Length: uint16(w.Len())}, w.Bytes()
}

func DecodeInfoTS(flags uint8, body []byte, origin int) (InfoTS, error) {
	var t InfoTS
	if flags&FlagInfoTSInvalidate != 0 {
		t.Invalid = true
		return t, nil
	}
	order := endianFromFlags(flags)
	r := cdr.NewReader(body, order, origin)
	sec, err := r.GetInt32()
	if err != nil {
		return t, err
	}
	frac, err := r.GetUint32()
	if err != nil {
		return t, err
	}
	t.Timestamp = Timestamp{Seconds: sec, Fraction: frac}
	return t, nil
}

// InfoDst sets the destination GuidPrefix for subsequent submessages
// (spec.md §4.1 INFO_DST).
type InfoDst struct {
	GuidPrefix guid.Prefix
}

const FlagInfoDstEndianness uint8 = 1 << 0

func EncodeInfoDst(order cdr.Endian, origin int, d InfoDst) (SubHeader, []byte) {
	w := cdr.NewWriter(order, origin+4)
	w.PutBytes(d.GuidPrefix[:])
	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= FlagInfoDstEndianness
	}
	return SubHeader{Kind: KindInfoDst, Flags: flags, Length: uint16(w.Len())}, w.Bytes()
}

func DecodeInfoDst(flags uint8, body []byte, origin int) (InfoDst, error) {
	order := endianFromFlags(flags)
	r := cdr.NewReader(body, order, origin)
	var d InfoDst
	b, err := r.GetBytes(guid.PrefixLength)
	if err != nil {
		return d, err
	}
	copy(d.GuidPrefix[:], b)
	return d, nil
}

// InfoSrc overrides the message header's GuidPrefix/vendor/version for
// subsequent submessages, used when relaying (spec.md §4.1 INFO_SRC).
type InfoSrc struct {
	Version    ProtocolVersion
	Vendor     VendorID
	GuidPrefix guid.Prefix
}

const FlagInfoSrcEndianness uint8 = 1 << 0

func EncodeInfoSrc(order cdr.Endian, origin int, s InfoSrc) (SubHeader, []byte) {
	w := cdr.NewWriter(order, origin+4)
	w.PutUint32(0) // unused
	w.PutUint8(s.Version.Major)
	w.PutUint8(s.Version.Minor)
	w.PutBytes(s.Vendor[:])
	w.PutBytes(s.GuidPrefix[:])
	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= FlagInfoSrcEndianness
	}
	return SubHeader{Kind: KindInfoSrc, Flags: flags, Length: uint16(w.Len())}, w.Bytes()
}

func DecodeInfoSrc(flags uint8, body []byte, origin int) (InfoSrc, error) {
	order := endianFromFlags(flags)
	r := cdr.NewReader(body, order, origin)
	var s InfoSrc
	if _, err := r.GetUint32(); err != nil {
		return s, err
	}
	major, err := r.GetUint8()
	if err != nil {
		return s, err
	}
	minor, err := r.GetUint8()
	if err != nil {
		return s, err
	}
	s.Version = ProtocolVersion{Major: major, Minor: minor}
	vb, err := r.GetBytes(2)
	if err != nil {
		return s, err
	}
	copy(s.Vendor[:], vb)
	pb, err := r.GetBytes(guid.PrefixLength)
	if err != nil {
		return s, err
	}
	copy(s.GuidPrefix[:], pb)
	return s, nil
}

// EncodePad writes a zero-length PAD submessage, used to align a
// message or as filler.
func EncodePad(order cdr.Endian) (SubHeader, []byte) {
	flags := uint8(0)
	if order == cdr.LittleEndian {
		flags |= 1
	}
	return SubHeader{Kind: KindPad, Flags: flags, Length: 0}, nil
}
