package plist

import (
	"fmt"

	"github.com/rtps-go/rtps/wire/cdr"
)

// Parameter is one raw { pid, length, value } tuple. Unknown PIDs are
// preserved verbatim so that decode-then-encode round-trips and so
// that a relay can forward parameters it does not understand (spec.md
// §4.1: "Unknown PIDs must be skipped using length, never rejecting
// the message").
type Parameter struct {
	PID   PID
	Value []byte
}

// List is an ordered sequence of Parameters, encoded 4-byte aligned
// and terminated by PIDSentinel.
type List struct {
	Params []Parameter
}

// Get returns the first parameter with the given PID, if any.
func (l *List) Get(pid PID) (Parameter, bool) {
	for _, p := range l.Params {
		if p.PID == pid {
			return p, true
		}
	}
	return Parameter{}, false
}

// Add appends a parameter.
func (l *List) Add(pid PID, value []byte) {
	l.Params = append(l.Params, Parameter{PID: pid, Value: value})
}

// Encode writes the ParameterList body (without the DATA submessage's
// own header) to w, padding each value to 4 bytes per spec.md §4.1 and
// terminating with PIDSentinel.
func Encode(w *cdr.Writer, l *List) {
	for _, p := range l.Params {
		w.PutUint16(uint16(p.PID))
		// Parameter values are stored unpadded; the declared length is
		// the raw value length, and the zero padding to a 4-byte
		// boundary follows the value.
		w.PutUint16(uint16(len(p.Value)))
		w.PutBytes(p.Value)
		pad := (4 - len(p.Value)%4) % 4
		for i := 0; i < pad; i++ {
			w.PutUint8(0)
		}
	}
	w.PutUint16(uint16(PIDSentinel))
	w.PutUint16(0)
}

// Decode reads a ParameterList body from r until PIDSentinel or
// exhaustion. A parameter whose declared length would overrun the
// remaining buffer ends decoding: Decode returns the parameters
// decoded up to that point together with an error.
func Decode(r *cdr.Reader) (*List, error) {
	l := &List{}
	for {
		pid, err := r.GetUint16()
		if err != nil {
			return l, nil // malformed trailing bytes: stop, keep what we have
		}
		length, err := r.GetUint16()
		if err != nil {
			return l, nil
		}
		if PID(pid) == PIDSentinel {
			return l, nil
		}
		padded := int(length)
		if r.Remaining() < padded {
			return l, fmt.Errorf("plist: parameter pid=0x%04x length=%d overruns buffer", pid, length)
		}
		value, err := r.GetBytes(padded)
		if err != nil {
			return l, err
		}
		l.Add(PID(pid), append([]byte(nil), value...))
		pad := (4 - padded%4) % 4
		if pad > 0 {
			if _, err := r.GetBytes(pad); err != nil {
				return l, nil
			}
		}
	}
}
