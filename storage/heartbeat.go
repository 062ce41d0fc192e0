package storage

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/netfsd/netfsd/internal/netlog"
	"github.com/netfsd/netfsd/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

// HeartbeatInterval is how often a storage server reports its liveness
// and load to the naming server.
const HeartbeatInterval = 5 * time.Second

// HeartbeatReporter periodically pushes this server's load to the
// naming server using a ticker+ctx.Done background loop.
type HeartbeatReporter struct {
	server *Server
	nsHost string
	nsPort int
	log    netlog.Logger

	loadGauge prometheus.Gauge
}

// NewHeartbeatReporter creates a reporter that pushes s's load to
// nsHost:nsPort every HeartbeatInterval.
func NewHeartbeatReporter(s *Server, nsHost string, nsPort int, log netlog.Logger) *HeartbeatReporter {
	if log == nil {
		log = netlog.Null{}
	}
	return &HeartbeatReporter{
		server: s,
		nsHost: nsHost,
		nsPort: nsPort,
		log:    log,
		loadGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netfsd",
			Subsystem: "ss",
			Name:      "load",
			Help:      "Current in-flight request count reported to the naming server.",
		}),
	}
}

// Collector exposes the reporter's Prometheus gauge.
func (r *HeartbeatReporter) Collector() prometheus.Collector { return r.loadGauge }

// Run blocks, sending a heartbeat every HeartbeatInterval, until ctx is
// cancelled.
func (r *HeartbeatReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	r.beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.beat()
		}
	}
}

func (r *HeartbeatReporter) beat() {
	load := r.server.Load()
	r.loadGauge.Set(float64(load))

	addr := fmt.Sprintf("%s:%d", r.nsHost, r.nsPort)
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		r.log.Warn("heartbeat dial to naming server %s failed: %v", addr, err)
		return
	}
	defer conn.Close()

	c := protocol.NewConn(conn)
	msg := protocol.HeartbeatMessage{
		Host: r.server.options.Hostname,
		Port: fmt.Sprintf("%d", r.server.options.Port),
		Load: int32(load),
	}
	if err := c.WriteFrame(&protocol.Frame{RequestID: 0, Type: protocol.Heartbeat, Payload: msg.Marshal()}); err != nil {
		r.log.Warn("heartbeat send to %s failed: %v", addr, err)
		return
	}
	if _, err := c.ReadFrame(); err != nil {
		r.log.Warn("heartbeat ack from %s failed: %v", addr, err)
	}
}
