package naming

import (
	"net"
	"testing"
	"time"

	"github.com/netfsd/netfsd/protocol"
)

func startTestServer(t *testing.T) (*Server, net.Conn) {
	t.Helper()
	srv, err := NewServer(ServerOptions{Port: 0})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func TestServerSSRegisterThenGetLocation(t *testing.T) {
	_, conn := startTestServer(t)
	c := protocol.NewConn(conn)

	reg := protocol.SSRegisterMessage{Port: 9100, Paths: []string{"a/b.txt"}}
	if err := c.WriteFrame(&protocol.Frame{RequestID: 1, Type: protocol.SSRegister, Payload: reg.Marshal()}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	resp, err := c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame (ack): %v", err)
	}
	if resp.Type != protocol.SSRegisterAck {
		t.Fatalf("expected SSRegisterAck, got %v", resp.Type)
	}

	loc := protocol.GetLocationRequest{Path: "a/b.txt"}
	if err := c.WriteFrame(&protocol.Frame{RequestID: 2, Type: protocol.GetLocation, Payload: loc.Marshal()}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	resp, err = c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame (location): %v", err)
	}
	if resp.Type != protocol.Location {
		t.Fatalf("expected Location, got %v", resp.Type)
	}
	got, err := protocol.UnmarshalLocationResponse(resp.Payload)
	if err != nil {
		t.Fatalf("UnmarshalLocationResponse: %v", err)
	}
	if got.Port != 9100 {
		t.Fatalf("LocationResponse.Port = %d, want 9100", got.Port)
	}
}

func TestServerGetLocationUnknownPathReturnsErrorFrame(t *testing.T) {
	_, conn := startTestServer(t)
	c := protocol.NewConn(conn)

	loc := protocol.GetLocationRequest{Path: "missing.txt"}
	if err := c.WriteFrame(&protocol.Frame{RequestID: 1, Type: protocol.GetLocation, Payload: loc.Marshal()}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	resp, err := c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if resp.Type != protocol.Error {
		t.Fatalf("expected Error frame, got %v", resp.Type)
	}
	if code := protocol.DecodeErrorFrame(resp); code != protocol.NotFound {
		t.Fatalf("error code = %v, want NotFound", code)
	}
}

func TestServerHeartbeatFeedsHealthRegistry(t *testing.T) {
	srv, conn := startTestServer(t)
	c := protocol.NewConn(conn)

	hb := protocol.HeartbeatMessage{Host: "10.0.0.9", Port: "9100", Load: 2}
	if err := c.WriteFrame(&protocol.Frame{RequestID: 1, Type: protocol.Heartbeat, Payload: hb.Marshal()}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := c.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if active, err := srv.Health().GetActive(); err == nil && len(active) == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("heartbeat was not reflected in the health registry")
}
