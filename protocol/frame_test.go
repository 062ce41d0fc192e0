package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		f    *Frame
	}{
		{"empty payload", &Frame{RequestID: 1, Type: Heartbeat}},
		{"small payload", &Frame{RequestID: 42, Type: Write, Payload: []byte("hello")}},
		{"binary payload", &Frame{RequestID: 7, Type: Read, Payload: []byte{0x00, 0xff, 0x10, 0x00}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			c := NewConn(&buf)
			if err := c.WriteFrame(tt.f); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			got, err := c.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if got.RequestID != tt.f.RequestID || got.Type != tt.f.Type {
				t.Fatalf("header mismatch: got %+v, want %+v", got, tt.f)
			}
			if !bytes.Equal(got.Payload, tt.f.Payload) {
				t.Fatalf("payload mismatch: got %v, want %v", got.Payload, tt.f.Payload)
			}
		})
	}
}

func TestFrameTruncatedPeerYieldsShortRead(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf)
	if err := c.WriteFrame(&Frame{RequestID: 1, Type: Write, Payload: []byte("hello world")}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	full := buf.Bytes()
	truncated := bytes.NewReader(full[:len(full)-3])
	tc := NewConn(struct {
		io.Reader
		io.Writer
	}{truncated, io.Discard})

	_, err := tc.ReadFrame()
	if err == nil {
		t.Fatal("expected an error reading a truncated frame")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF/EOF, got %v", err)
	}
}

func TestFrameOversizedPayloadRejected(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, FrameHeaderSize)
	be.PutUint32(header[0:4], 1)
	be.PutUint32(header[4:8], uint32(Write))
	be.PutUint32(header[8:12], MaxPayloadSize+1)
	buf.Write(header)

	c := NewConn(&buf)
	_, err := c.ReadFrame()
	if !errors.Is(err, ErrFrameTooLong) {
		t.Fatalf("expected ErrFrameTooLong, got %v", err)
	}
}

func TestWriteErrorFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf)
	if err := c.WriteErrorFrame(9, NotFound); err != nil {
		t.Fatalf("WriteErrorFrame: %v", err)
	}

	f, err := c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Type != Error {
		t.Fatalf("expected Error type, got %v", f.Type)
	}
	if code := DecodeErrorFrame(f); code != NotFound {
		t.Fatalf("expected NotFound, got %v", code)
	}
}
