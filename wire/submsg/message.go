package submsg

import (
	"github.com/rtps-go/rtps/rtpserrors"
	"github.com/rtps-go/rtps/wire/cdr"
)

// RawSubmessage is an undecoded submessage: its header plus the raw
// body bytes, as extracted from a Message. Endpoints decode the kinds
// they care about and ignore the rest (spec.md §4.1: unsupported
// submessage kinds are skipped using their declared length).
type RawSubmessage struct {
	Header SubHeader
	Body   []byte
	// Origin is the byte offset of Body's first byte within the
	// overall message, needed to reconstruct CDR alignment when
	// decoding the body.
	Origin int
}

// Message is a decoded RTPS message: its header plus the ordered list
// of submessages it carries.
type Message struct {
	Header      Header
	Submessages []RawSubmessage
}

// DecodeMessage parses a full RTPS message per spec.md §4.1 "Message
// layout" and "Failure semantics": a bad magic number or unsupported
// major version drops the whole message (returned as an error); a
// submessage whose declared length would overrun the buffer causes the
// remainder of the message to be dropped, but submessages already
// parsed are still returned.
func DecodeMessage(buf []byte) (*Message, error) {
	r := cdr.NewReader(buf, cdr.BigEndian, 0)
	header, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}
	msg := &Message{Header: header}
	for r.Remaining() > 0 {
		if r.Remaining() < 4 {
			break // trailing pad shorter than a header: ignore
		}
		subHeader, err := DecodeSubHeader(r)
		if err != nil {
			break
		}
		var length int
		if subHeader.Length == 0 {
			length = r.Remaining()
		} else {
			length = int(subHeader.Length)
		}
		if length > r.Remaining() {
			// Declared length overruns the buffer: the rest of this
			// message cannot be reliably parsed past this point.
			return msg, rtpserrors.NewMalformedMessageError(
				"submessage kind=%v declares length %d, only %d remain", subHeader.Kind, length, r.Remaining())
		}
		body, err := r.GetBytes(length)
		if err != nil {
			break
		}
		msg.Submessages = append(msg.Submessages, RawSubmessage{
			Header: subHeader,
			Body:   append([]byte(nil), body...),
			Origin: r.Pos() - length,
		})
	}
	return msg, nil
}

// Encoder assembles a Message by appending pre-encoded submessages.
type Encoder struct {
	w *cdr.Writer
}

// NewEncoder starts a message with the given header, written in
// BigEndian per spec.md's convention that the message header itself is
// not endianness-flagged.
func NewEncoder(h Header) *Encoder {
	w := cdr.NewWriter(cdr.BigEndian, 0)
	EncodeHeader(w, h)
	return &Encoder{w: w}
}

// Append adds one already-encoded submessage (header + body) to the
// message.
func (e *Encoder) Append(h SubHeader, body []byte) {
	EncodeSubHeader(e.w, h)
	e.w.PutBytes(body)
}

func (e *Encoder) Bytes() []byte { return e.w.Bytes() }
