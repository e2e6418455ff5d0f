package binary

import (
	"bytes"
	"encoding/binary"
)

// Writer provides buffered writing utilities for container encoding.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteU64 writes an 8-byte unsigned integer in host byte order.
func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}
