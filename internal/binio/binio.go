// Package binio reads and writes the fixed width big-endian fields used by every jinx stream.
//
// Both Writer and Reader are sticky: after the first failure every further call is a no-op and
// Err reports the failure.
package binio

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Writer writes big-endian fields to an underlying io.Writer.
type Writer struct {
	w   io.Writer
	buf [4]byte
	n   int64
	err error
}

// NewWriter creates a Writer.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	if err != nil {
		w.err = errors.WithStack(err)
	}
}

// Int32 writes v as four bytes.
func (w *Writer) Int32(v int32) {
	binary.BigEndian.PutUint32(w.buf[:], uint32(v))
	w.write(w.buf[:4])
}

// Float32 writes the IEEE-754 bits of v.
func (w *Writer) Float32(v float32) {
	binary.BigEndian.PutUint32(w.buf[:], math.Float32bits(v))
	w.write(w.buf[:4])
}

// Bool writes a single byte, 1 for true.
func (w *Writer) Bool(v bool) {
	w.buf[0] = 0
	if v {
		w.buf[0] = 1
	}
	w.write(w.buf[:1])
}

// Floats writes a without a length prefix, highest index first.
func (w *Writer) Floats(a []float32) {
	for i := len(a) - 1; i >= 0; i-- {
		w.Float32(a[i])
	}
}

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 { return w.n }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Reader reads big-endian fields from an underlying io.Reader.
type Reader struct {
	r   io.Reader
	buf [4]byte
	err error
}

// NewReader creates a Reader.
func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

func (r *Reader) read(p []byte) bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.r, p); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		r.err = errors.WithStack(err)
		return false
	}
	return true
}

// Int32 reads four bytes as a signed integer.
func (r *Reader) Int32() int32 {
	if !r.read(r.buf[:4]) {
		return 0
	}
	return int32(binary.BigEndian.Uint32(r.buf[:4]))
}

// Float32 reads an IEEE-754 float.
func (r *Reader) Float32() float32 {
	if !r.read(r.buf[:4]) {
		return 0
	}
	return math.Float32frombits(binary.BigEndian.Uint32(r.buf[:4]))
}

// Bool reads a single byte. Any non zero value is true.
func (r *Reader) Bool() bool {
	if !r.read(r.buf[:1]) {
		return false
	}
	return r.buf[0] != 0
}

// Floats fills a in the order Writer.Floats wrote it.
func (r *Reader) Floats(a []float32) {
	for i := len(a) - 1; i >= 0; i-- {
		a[i] = r.Float32()
	}
}

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }
