// Package params packs and unpacks little-endian command/event parameters.
package params

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortParams  = errors.New("params: short parameter block")
	ErrValueTooLong = errors.New("params: value exceeds fixed field")
)

// Writer appends little-endian fields to a parameter block.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) U16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) Bytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) Zero(n int) *Writer {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
	return w
}

// Fixed writes b into an n-byte field, zero-padding the tail.
func (w *Writer) Fixed(b []byte, n int) error {
	if len(b) > n {
		return fmt.Errorf("%w: %d > %d", ErrValueTooLong, len(b), n)
	}
	w.Bytes(b).Zero(n - len(b))
	return nil
}

func (w *Writer) Len() int {
	return len(w.buf)
}

// Params returns the packed block. The writer must not be reused afterwards.
func (w *Writer) Params() []byte {
	return w.buf
}

// Reader walks a parameter block front to back.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d have %d", ErrShortParams, n, r.Remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Rest returns a copy of everything not yet consumed.
func (r *Reader) Rest() []byte {
	out, _ := r.Bytes(r.Remaining())
	return out
}
