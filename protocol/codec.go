package protocol

import "encoding/binary"

// netfsd's wire integers are big-endian throughout, fixing the
// byte-order inconsistency the original C implementation left
// unresolved.
var be = binary.BigEndian

// ByteWriter accumulates a payload with fixed-width big-endian fields.
type ByteWriter struct {
	buf []byte
}

// NewByteWriter creates a ByteWriter with capacity hint n.
func NewByteWriter(n int) *ByteWriter {
	return &ByteWriter{buf: make([]byte, 0, n)}
}

func (w *ByteWriter) WriteOneByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *ByteWriter) WriteUint16(v uint16) {
	var tmp [2]byte
	be.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *ByteWriter) WriteUint32(v uint32) {
	var tmp [4]byte
	be.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *ByteWriter) WriteUint64(v uint64) {
	var tmp [8]byte
	be.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *ByteWriter) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteFixedString writes s left-justified and NUL-padded/truncated to
// exactly n bytes, matching the wire's fixed char[n] fields.
func (w *ByteWriter) WriteFixedString(s string, n int) {
	tmp := make([]byte, n)
	copy(tmp, s)
	w.buf = append(w.buf, tmp...)
}

func (w *ByteWriter) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *ByteWriter) Bytes() []byte {
	return w.buf
}

// ByteReader reads fixed-width big-endian fields from a payload.
type ByteReader struct {
	data []byte
	pos  int
	err  error
}

func NewByteReader(data []byte) *ByteReader {
	return &ByteReader{data: data}
}

// Err returns the first short-read error encountered, if any.
func (r *ByteReader) Err() error {
	return r.err
}

func (r *ByteReader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *ByteReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = ErrShortFrame
		return false
	}
	return true
}

func (r *ByteReader) ReadOneByte() byte {
	if !r.need(1) {
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *ByteReader) ReadUint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := be.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *ByteReader) ReadUint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := be.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *ByteReader) ReadUint64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := be.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

func (r *ByteReader) ReadInt32() int32 {
	return int32(r.ReadUint32())
}

// ReadFixedString reads n bytes and trims the trailing NUL padding.
func (r *ByteReader) ReadFixedString(n int) string {
	if !r.need(n) {
		return ""
	}
	raw := r.data[r.pos : r.pos+n]
	r.pos += n
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end])
}

func (r *ByteReader) ReadBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// ReadRemaining returns every unread byte.
func (r *ByteReader) ReadRemaining() []byte {
	return r.ReadBytes(r.Remaining())
}
