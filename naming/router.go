package naming

import (
	"net"
	"sync"
	"time"

	"github.com/netfsd/netfsd/internal/netlog"
)

// MaxPooledConns is the default bound on how many NS→SS connections the
// router keeps open at once, matching the architectural baseline in
// the design (a capped pool of up to 100 entries). The naming server's
// --cache-size flag can raise or lower this per deployment.
const MaxPooledConns = 100

// pooledConn is one entry in the router's connection pool: a live TCP
// connection to a storage server plus its in-use flag.
type pooledConn struct {
	key    string
	conn   net.Conn
	inUse  bool
	closed bool
}

// Router owns a bounded pool of NS→SS connections and the lowest-load
// selection logic that picks which storage server serves a new write.
// A fixed slice of slots, a free-list scan under one mutex, and
// dial-on-miss.
type Router struct {
	mu       sync.Mutex
	conns    []*pooledConn
	log      netlog.Logger
	maxConns int

	health *HealthRegistry
	dial   func(network, address string) (net.Conn, error)
}

// NewRouter creates a router backed by reg for liveness/load lookups,
// with a pool capacity of maxConns (MaxPooledConns if maxConns <= 0).
func NewRouter(reg *HealthRegistry, log netlog.Logger, maxConns int) *Router {
	if log == nil {
		log = netlog.Null{}
	}
	if maxConns <= 0 {
		maxConns = MaxPooledConns
	}
	return &Router{
		health:   reg,
		log:      log,
		dial:     net.Dial,
		maxConns: maxConns,
	}
}

// Select picks the active storage server with the lowest current load
// (insertion-order tiebreak), per the health registry's Lowest.
func (r *Router) Select() (StorageRecord, error) {
	return r.health.Lowest()
}

// Acquire returns a connection to addr, reusing a free pooled entry if
// one exists. The caller must call Release when done.
func (r *Router) Acquire(addr string) (net.Conn, error) {
	r.mu.Lock()
	for _, pc := range r.conns {
		if pc.key == addr && !pc.inUse && !pc.closed {
			pc.inUse = true
			r.mu.Unlock()
			return pc.conn, nil
		}
	}
	r.mu.Unlock()

	conn, err := r.dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.conns) >= r.maxConns {
		r.evictOneClosedLocked()
	}
	if len(r.conns) < r.maxConns {
		r.conns = append(r.conns, &pooledConn{key: addr, conn: conn, inUse: true})
	} else {
		r.log.Warn("connection pool at capacity (%d), not caching connection to %s", r.maxConns, addr)
	}
	return conn, nil
}

// Release marks conn as free for reuse by a future Acquire(addr).
func (r *Router) Release(addr string, conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pc := range r.conns {
		if pc.key == addr && pc.conn == conn {
			pc.inUse = false
			return
		}
	}
}

// Invalidate drops conn from the pool and closes it, used after an I/O
// error so a future Acquire dials fresh.
func (r *Router) Invalidate(addr string, conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, pc := range r.conns {
		if pc.key == addr && pc.conn == conn {
			pc.closed = true
			_ = pc.conn.Close()
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return
		}
	}
	_ = conn.Close()
}

func (r *Router) evictOneClosedLocked() {
	for i, pc := range r.conns {
		if pc.closed || !pc.inUse {
			_ = pc.conn.Close()
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return
		}
	}
}

// DialTimeout is the deadline applied to NS→SS forwarding dials.
const DialTimeout = 3 * time.Second
