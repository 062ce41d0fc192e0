package protocol

import (
	"io"
	"sync"
)

// MaxPayloadSize bounds a single frame's payload to guard against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const MaxPayloadSize = 64 * 1024 * 1024

// Frame is the 12-byte-header + typed-payload unit of the wire protocol:
// RequestID is an opaque correlator chosen by the originator, Type
// selects the payload layout, PayloadSize is the byte length of
// Payload.
type Frame struct {
	RequestID   uint32
	Type        MessageType
	PayloadSize uint32
	Payload     []byte
}

// Conn wraps a net.Conn-like stream with the per-socket mutex the protocol
// requires: a single logical message's send or receive loop is atomic on
// the wire, so concurrent writers on a shared socket never interleave.
type Conn struct {
	rw io.ReadWriter

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewConn wraps rw (typically a net.Conn) for framed message exchange.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw}
}

// ReadFrame blocks until a complete frame has been read, or returns an
// error. A short read is reported as io.EOF (nothing read) or
// io.ErrUnexpectedEOF (EOF mid-header or mid-payload), both of which
// CodeOf maps to NetworkFailure, and the caller must close the
// connection — short reads are never silently truncated.
func (c *Conn) ReadFrame() (*Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		return nil, err
	}

	f := &Frame{
		RequestID:   be.Uint32(header[0:4]),
		Type:        MessageType(be.Uint32(header[4:8])),
		PayloadSize: be.Uint32(header[8:12]),
	}

	if f.PayloadSize > MaxPayloadSize {
		return nil, ErrFrameTooLong
	}

	if f.PayloadSize > 0 {
		payload := make([]byte, f.PayloadSize)
		if _, err := io.ReadFull(c.rw, payload); err != nil {
			return nil, err
		}
		f.Payload = payload
	}

	return f, nil
}

// WriteFrame marshals and writes f as a single logical message. The
// write is atomic with respect to other WriteFrame calls on the same
// Conn.
func (c *Conn) WriteFrame(f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var header [FrameHeaderSize]byte
	be.PutUint32(header[0:4], f.RequestID)
	be.PutUint32(header[4:8], uint32(f.Type))
	be.PutUint32(header[8:12], uint32(len(f.Payload)))

	if _, err := c.rw.Write(header[:]); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		if _, err := c.rw.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}

// WriteErrorFrame writes an ERROR frame carrying code, correlated to
// requestID.
func (c *Conn) WriteErrorFrame(requestID uint32, code ErrorCode) error {
	w := NewByteWriter(4)
	w.WriteInt32(int32(code))
	return c.WriteFrame(&Frame{RequestID: requestID, Type: Error, Payload: w.Bytes()})
}

// ReadRawPayload copies n raw bytes directly from the underlying stream,
// bypassing frame parsing, for exchanges that follow a success header
// with an open byte stream. The built-in Stream path does not use it;
// it exchanges StreamData frames instead.
func (c *Conn) ReadRawPayload(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteRaw writes b directly to the underlying writer, for streaming raw
// bytes after a framed success header, serialized against concurrent
// WriteFrame calls.
func (c *Conn) WriteRaw(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.rw.Write(b)
	return err
}

// DecodeErrorFrame extracts the ErrorCode from an ERROR frame's payload.
func DecodeErrorFrame(f *Frame) ErrorCode {
	if f.Type != Error || len(f.Payload) < 4 {
		return ProtocolError
	}
	r := NewByteReader(f.Payload)
	return ErrorCode(r.ReadInt32())
}
