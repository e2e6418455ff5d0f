package binary

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Reader wraps an io.Reader with position tracking and fixed-width reads in
// host byte order.
type Reader struct {
	r   *bufio.Reader
	pos int64
}

// NewReader creates a new Reader wrapping r.
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

// Position returns the current byte position.
func (r *Reader) Position() int64 {
	return r.pos
}

// ReadByte reads a single byte and advances the position.
// At end of input it returns io.EOF.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, err
	}
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes. A short read returns io.ErrUnexpectedEOF,
// including when no byte at all could be read.
func (r *Reader) ReadBytes(n uint64) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r.r, buf)
	r.pos += int64(read)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadU64 reads an 8-byte unsigned integer in host byte order.
func (r *Reader) ReadU64() (uint64, error) {
	var buf [8]byte
	read, err := io.ReadFull(r.r, buf[:])
	r.pos += int64(read)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}
