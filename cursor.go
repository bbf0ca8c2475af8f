// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// binReader reads little-endian values from a byte slice.
// The first failure sticks: later reads return zero values and Err reports it.
type binReader struct {
	buf   []byte
	off   int
	limit int
	err   error
}

func newBinReader(buf []byte) *binReader {
	return &binReader{buf: buf, limit: len(buf)}
}

// newBinReaderAt reads buf starting at off and refuses to read beyond limit.
func newBinReaderAt(buf []byte, off, limit int) *binReader {
	if limit > len(buf) || limit < 0 {
		limit = len(buf)
	}
	return &binReader{buf: buf, off: off, limit: limit}
}

func (r *binReader) Err() error { return r.err }

func (r *binReader) Tell() int { return r.off }

func (r *binReader) Remaining() int {
	if r.off >= r.limit {
		return 0
	}
	return r.limit - r.off
}

// Seek moves to an absolute offset.
func (r *binReader) Seek(off int) {
	if r.err != nil {
		return
	}
	if off < 0 || off > r.limit {
		r.err = fmt.Errorf("%w: seek to %d outside [0, %d]", ErrBufferUnderrun, off, r.limit)
		return
	}
	r.off = off
}

func (r *binReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > r.limit {
		r.err = fmt.Errorf("%w: read %d bytes at offset %d, length %d", ErrBufferUnderrun, n, r.off, r.limit)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// Bytes returns a copy of the next n bytes.
func (r *binReader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}

func (r *binReader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *binReader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *binReader) Uint24() uint32 {
	b := r.take(3)
	if b == nil {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func (r *binReader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *binReader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *binReader) Int8() int8   { return int8(r.Uint8()) }
func (r *binReader) Int16() int16 { return int16(r.Uint16()) }
func (r *binReader) Int32() int32 { return int32(r.Uint32()) }
func (r *binReader) Int64() int64 { return int64(r.Uint64()) }

// CString reads a null-terminated string. The terminator is consumed.
func (r *binReader) CString() string {
	if r.err != nil {
		return ""
	}
	end := bytes.IndexByte(r.buf[r.off:r.limit], 0)
	if end < 0 {
		r.err = fmt.Errorf("%w: unterminated string at offset %d, length %d", ErrBufferUnderrun, r.off, r.limit)
		return ""
	}
	s := string(r.buf[r.off : r.off+end])
	r.off += end + 1
	return s
}

// FixedString reads an n-byte null-padded field and returns the text before
// the first null.
func (r *binReader) FixedString(n int) string {
	b := r.take(n)
	if b == nil {
		return ""
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// binWriter writes little-endian values into a growable buffer.
type binWriter struct {
	buf []byte
	off int
}

func newBinWriter(capacity int) *binWriter {
	return &binWriter{buf: make([]byte, 0, capacity)}
}

func (w *binWriter) Tell() int { return w.off }

// Seek moves to an absolute offset, zero-extending the buffer if needed.
func (w *binWriter) Seek(off int) {
	if off > len(w.buf) {
		w.buf = append(w.buf, make([]byte, off-len(w.buf))...)
	}
	w.off = off
}

// Bytes returns the written buffer.
func (w *binWriter) Bytes() []byte { return w.buf }

func (w *binWriter) Write(p []byte) (int, error) {
	w.put(p)
	return len(p), nil
}

func (w *binWriter) put(p []byte) {
	end := w.off + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.off:], p)
	w.off = end
}

func (w *binWriter) PutBytes(p []byte) { w.put(p) }

func (w *binWriter) PutUint8(v uint8) { w.put([]byte{v}) }

func (w *binWriter) PutUint16(v uint16) {
	w.put(binary.LittleEndian.AppendUint16(nil, v))
}

func (w *binWriter) PutUint24(v uint32) {
	w.put([]byte{byte(v), byte(v >> 8), byte(v >> 16)})
}

func (w *binWriter) PutUint32(v uint32) {
	w.put(binary.LittleEndian.AppendUint32(nil, v))
}

func (w *binWriter) PutUint64(v uint64) {
	w.put(binary.LittleEndian.AppendUint64(nil, v))
}

func (w *binWriter) PutInt8(v int8)   { w.PutUint8(uint8(v)) }
func (w *binWriter) PutInt16(v int16) { w.PutUint16(uint16(v)) }
func (w *binWriter) PutInt32(v int32) { w.PutUint32(uint32(v)) }
func (w *binWriter) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutCString writes s followed by a null terminator.
func (w *binWriter) PutCString(s string) {
	w.put(append([]byte(s), 0))
}

// PutFixedString writes s into an n-byte null-padded field.
func (w *binWriter) PutFixedString(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	w.put(field)
}
