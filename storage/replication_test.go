package storage

import (
	"net"
	"testing"
	"time"

	"github.com/netfsd/netfsd/protocol"
)

// fakeSecondary accepts one connection and records every write frame it
// receives, acking each with the same message type.
func fakeSecondary(t *testing.T) (addr string, received chan protocol.WriteRequest) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	received = make(chan protocol.WriteRequest, 8)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		c := protocol.NewConn(conn)
		for {
			frame, err := c.ReadFrame()
			if err != nil {
				return
			}
			if frame.Type == protocol.ReplicateWrite {
				req, err := protocol.UnmarshalWriteRequest(frame.Payload)
				if err == nil {
					received <- req
				}
			}
			_ = c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: frame.Type})
		}
	}()

	return ln.Addr().String(), received
}

func TestReplicatorForwardsWritesToLiveSecondary(t *testing.T) {
	addr, received := fakeSecondary(t)

	r := NewReplicator([]string{addr}, nil)
	r.reconnectAll() // synchronously dial instead of waiting on the ticker

	r.Replicate(protocol.WriteRequest{Path: "a.txt", Offset: 0, Data: []byte("hi")})

	select {
	case got := <-received:
		if got.Path != "a.txt" || string(got.Data) != "hi" {
			t.Fatalf("secondary got %+v, want path a.txt data hi", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("secondary never received the replicated write")
	}
}

func TestReplicatorDropsWritesToDeadSecondary(t *testing.T) {
	r := NewReplicator([]string{"127.0.0.1:1"}, nil) // never reconnects: nothing listens there
	// Replicate must not block or panic even though the secondary is dead.
	r.Replicate(protocol.WriteRequest{Path: "a.txt", Data: []byte("x")})
}
