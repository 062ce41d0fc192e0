package protocol

import (
	"bytes"
	"testing"
)

func TestWriteRequestRoundTrip(t *testing.T) {
	wreq := WriteRequest{Path: "a/b.txt", Offset: 128, Data: []byte("hello")}
	got, err := UnmarshalWriteRequest(wreq.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Path != wreq.Path || got.Offset != wreq.Offset || !bytes.Equal(got.Data, wreq.Data) {
		t.Fatalf("got %+v, want %+v", got, wreq)
	}
}

func TestSSRegisterMessageRoundTrip(t *testing.T) {
	msg := SSRegisterMessage{Port: 9100, Paths: []string{"a.txt", "dir/b.txt"}}
	got, err := UnmarshalSSRegisterMessage(msg.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Port != msg.Port || len(got.Paths) != len(msg.Paths) {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
	for i := range msg.Paths {
		if got.Paths[i] != msg.Paths[i] {
			t.Fatalf("path %d: got %q, want %q", i, got.Paths[i], msg.Paths[i])
		}
	}
}

func TestLocationResponseRoundTrip(t *testing.T) {
	loc := LocationResponse{Host: "127.0.0.1", Port: 9100}
	got, err := UnmarshalLocationResponse(loc.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != loc {
		t.Fatalf("got %+v, want %+v", got, loc)
	}
}

func TestHeartbeatMessageRoundTrip(t *testing.T) {
	hb := HeartbeatMessage{Host: "10.0.0.5", Port: "9100", Load: 7}
	got, err := UnmarshalHeartbeatMessage(hb.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != hb {
		t.Fatalf("got %+v, want %+v", got, hb)
	}
}

func TestFixedStringTruncation(t *testing.T) {
	longPath := make([]byte, MaxPathLen+50)
	for i := range longPath {
		longPath[i] = 'a'
	}
	req := ReadRequest{Path: string(longPath), Offset: 0, Length: 1}
	got, err := UnmarshalReadRequest(req.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Path) != MaxPathLen {
		t.Fatalf("expected path truncated to %d bytes, got %d", MaxPathLen, len(got.Path))
	}
}
