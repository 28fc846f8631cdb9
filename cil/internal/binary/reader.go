// Package binary provides a bounds-checked little-endian cursor over a
// borrowed byte slice.
package binary

import (
	"encoding/binary"

	"github.com/pcrain/ilreader/errors"
)

// Reader walks a byte slice it does not own. Every read either consumes
// exactly the requested width or fails without moving the cursor.
type Reader struct {
	buf   []byte
	pos   int
	phase errors.Phase
}

// NewReader creates a Reader over buf. Errors are reported in phase.
func NewReader(buf []byte, phase errors.Phase) *Reader {
	return &Reader{buf: buf, phase: phase}
}

// Position returns the current byte position.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the total buffer length.
func (r *Reader) Len() int {
	return len(r.buf)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Seek moves the cursor to pos, which may equal Len.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return errors.OutOfBounds(r.phase, nil, pos, len(r.buf))
	}
	r.pos = pos
	return nil
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errors.Truncated(r.phase, r.pos, 1, 0)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes returns the next n bytes as a sub-slice of the buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances past n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// ReadU16LE reads a little-endian uint16.
func (r *Reader) ReadU16LE() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadU24LE reads a little-endian 3-byte unsigned integer.
func (r *Reader) ReadU24LE() (uint32, error) {
	if err := r.need(3); err != nil {
		return 0, err
	}
	b := r.buf[r.pos:]
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	r.pos += 3
	return v, nil
}

// ReadU32LE reads a little-endian uint32 (fixed 4 bytes).
func (r *Reader) ReadU32LE() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadU64LE reads a little-endian uint64 (fixed 8 bytes).
func (r *Reader) ReadU64LE() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// Align advances the cursor to the next multiple of n, clamped to Len.
func (r *Reader) Align(n int) {
	if rem := r.pos % n; rem != 0 {
		r.pos += n - rem
	}
	if r.pos > len(r.buf) {
		r.pos = len(r.buf)
	}
}

func (r *Reader) need(n int) error {
	if n < 0 || n > len(r.buf)-r.pos {
		return errors.Truncated(r.phase, r.pos, n, len(r.buf)-r.pos)
	}
	return nil
}
