// Package cdr implements the little/big-endian CDR primitive encoding
// used inside RTPS submessage bodies (spec.md §4.1: "the endianness
// flag... selects CDR byte order for that submessage's body"). No
// third-party CDR codec implements OMG RTPS's specific alignment and
// encapsulation rules, so this is necessarily stdlib-only
// (encoding/binary) — see DESIGN.md.
package cdr

import (
	"encoding/binary"
	"fmt"
)

// Endian selects byte order for a submessage body.
type Endian bool

const (
	BigEndian    Endian = false
	LittleEndian Endian = true
)

func (e Endian) byteOrder() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Writer accumulates a CDR-encoded submessage body, tracking the
// 4-byte alignment required by the RTPS wire format.
type Writer struct {
	buf   []byte
	order Endian
	// origin is subtracted from the current length before computing
	// padding, since alignment is relative to the start of the
	// enclosing submessage, not the start of buf.
	origin int
}

// NewWriter starts a new CDR writer with the given byte order. origin
// is the byte offset (within the final message) this writer's buffer
// will be placed at, for alignment purposes; pass 0 if the writer's
// output begins aligned.
func NewWriter(order Endian, origin int) *Writer {
	return &Writer{order: order, origin: origin}
}

func (w *Writer) Bytes() []byte { return w.buf }

// OrderIsLittleEndian reports the byte order this writer encodes with,
// for callers that must patch an already-written field in place (e.g.
// DATA's octetsToInlineQos).
func (w *Writer) OrderIsLittleEndian() bool { return w.order == LittleEndian }

func (w *Writer) Len() int { return len(w.buf) }

// Align pads buf with zero bytes until (origin+len(buf)) is a multiple
// of n.
func (w *Writer) Align(n int) {
	pos := w.origin + len(w.buf)
	pad := (n - pos%n) % n
	for i := 0; i < pad; i++ {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PutUint8(v uint8)  { w.buf = append(w.buf, v) }
func (w *Writer) PutBytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) PutUint16(v uint16) {
	w.Align(2)
	var b [2]byte
	w.order.byteOrder().PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint32(v uint32) {
	w.Align(4)
	var b [4]byte
	w.order.byteOrder().PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutInt32(v int32) { w.PutUint32(uint32(v)) }

func (w *Writer) PutUint64(v uint64) {
	w.Align(8)
	var b [8]byte
	w.order.byteOrder().PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutString encodes a CDR string: uint32 length (including the NUL
// terminator) followed by the bytes and a terminating NUL.
func (w *Writer) PutString(s string) {
	w.PutUint32(uint32(len(s) + 1))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Reader parses a CDR-encoded submessage body.
type Reader struct {
	buf    []byte
	pos    int
	order  Endian
	origin int
}

func NewReader(buf []byte, order Endian, origin int) *Reader {
	return &Reader{buf: buf, order: order, origin: origin}
}

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Pos returns the current read offset within buf.
func (r *Reader) Pos() int { return r.pos }

func (r *Reader) align(n int) {
	pos := r.origin + r.pos
	pad := (n - pos%n) % n
	r.pos += pad
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("cdr: short read: need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

func (r *Reader) GetUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) GetBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) GetUint16() (uint16, error) {
	r.align(2)
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := r.order.byteOrder().Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) GetUint32() (uint32, error) {
	r.align(4)
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := r.order.byteOrder().Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) GetInt32() (int32, error) {
	v, err := r.GetUint32()
	return int32(v), err
}

func (r *Reader) GetUint64() (uint64, error) {
	r.align(8)
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := r.order.byteOrder().Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) GetInt64() (int64, error) {
	v, err := r.GetUint64()
	return int64(v), err
}

// GetString decodes a CDR string (uint32 length including NUL, bytes,
// NUL), returning the content without the terminator.
func (r *Reader) GetString() (string, error) {
	n, err := r.GetUint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("cdr: zero-length string (missing NUL)")
	}
	b, err := r.GetBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b[:len(b)-1]), nil
}
