package storage

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/netfsd/netfsd/internal/netlog"
	"github.com/netfsd/netfsd/protocol"
)

// ReconnectInterval is how often a dead secondary is retried.
const ReconnectInterval = 5 * time.Second

// secondary is one replication target: a persistent connection that is
// marked dead on the first I/O failure and retried on a timer.
type secondary struct {
	addr string
	mu   sync.Mutex
	conn net.Conn
	dead bool
}

// Replicator fans best-effort writes and deletes out to a fixed set of
// secondary storage servers. A write to a dead secondary is dropped,
// not queued: a secondary that reconnects after an outage does not
// receive the writes it missed, matching the relaxed consistency model
// storage servers operate under.
type Replicator struct {
	secondaries []*secondary
	log         netlog.Logger
}

// NewReplicator creates a replicator fanning out to addrs.
func NewReplicator(addrs []string, log netlog.Logger) *Replicator {
	if log == nil {
		log = netlog.Null{}
	}
	r := &Replicator{log: log}
	for _, a := range addrs {
		r.secondaries = append(r.secondaries, &secondary{addr: a, dead: true})
	}
	return r
}

// Replicate asynchronously forwards req to every live secondary.
func (r *Replicator) Replicate(req protocol.WriteRequest) {
	for _, sec := range r.secondaries {
		sec := sec
		go r.send(sec, protocol.ReplicateWrite, req.Marshal())
	}
}

// ReplicateDelete asynchronously forwards a delete to every live secondary.
func (r *Replicator) ReplicateDelete(path string) {
	del := protocol.DeleteRequest{Path: path}
	for _, sec := range r.secondaries {
		sec := sec
		go r.send(sec, protocol.ReplicateDelete, del.Marshal())
	}
}

func (r *Replicator) send(sec *secondary, msgType protocol.MessageType, payload []byte) {
	sec.mu.Lock()
	if sec.dead || sec.conn == nil {
		sec.mu.Unlock()
		return
	}
	conn := sec.conn
	sec.mu.Unlock()

	c := protocol.NewConn(conn)
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.WriteFrame(&protocol.Frame{RequestID: 0, Type: msgType, Payload: payload}); err != nil {
		r.markDead(sec, err)
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.ReadFrame(); err != nil {
		r.markDead(sec, err)
	}
}

func (r *Replicator) markDead(sec *secondary, err error) {
	sec.mu.Lock()
	defer sec.mu.Unlock()
	if sec.conn != nil {
		_ = sec.conn.Close()
		sec.conn = nil
	}
	if !sec.dead {
		r.log.Warn("replication link to %s failed, marking dead: %v", sec.addr, err)
	}
	sec.dead = true
}

// RunReconnectLoop dials every dead secondary every ReconnectInterval,
// until ctx is cancelled.
func (r *Replicator) RunReconnectLoop(ctx context.Context) {
	ticker := time.NewTicker(ReconnectInterval)
	defer ticker.Stop()

	r.reconnectAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconnectAll()
		}
	}
}

func (r *Replicator) reconnectAll() {
	for _, sec := range r.secondaries {
		sec.mu.Lock()
		needsDial := sec.dead
		sec.mu.Unlock()
		if !needsDial {
			continue
		}

		conn, err := net.DialTimeout("tcp", sec.addr, 3*time.Second)
		if err != nil {
			continue
		}

		sec.mu.Lock()
		sec.conn = conn
		sec.dead = false
		sec.mu.Unlock()
		r.log.Info("replication link to %s established", sec.addr)
	}
}
