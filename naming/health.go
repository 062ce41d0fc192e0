package naming

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/netfsd/netfsd/internal/netlog"
	"github.com/netfsd/netfsd/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

// MaxStorageServers bounds the health registry's capacity.
const MaxStorageServers = 100

// HeartbeatTimeout is the liveness window: a record silent for at least
// this long is swept to inactive.
const HeartbeatTimeout = 15 * time.Second

// ssRecord is a storage server's liveness/load entry.
type ssRecord struct {
	Host          string
	Port          uint16
	LastHeartbeat time.Time
	Load          int
	Active        bool
}

// StorageRecord is the public (copyable) view of an ssRecord.
type StorageRecord struct {
	Host          string
	Port          uint16
	LastHeartbeat time.Time
	Load          int
	Active        bool
}

// HealthRegistry tracks the liveness and load of known storage servers
// behind a single coarse mutex, decoupled from the directory tree so
// storage servers can appear and disappear without rewriting the
// namespace.
type HealthRegistry struct {
	mu      sync.Mutex
	records map[string]*ssRecord // keyed by host:port
	order   []string             // insertion order, for load tie-breaks
	log     netlog.Logger

	activeGauge prometheus.Gauge
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry(log netlog.Logger) *HealthRegistry {
	if log == nil {
		log = netlog.Null{}
	}
	h := &HealthRegistry{
		records: make(map[string]*ssRecord),
		log:     log,
		activeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netfsd",
			Subsystem: "ns",
			Name:      "active_storage_servers",
			Help:      "Number of storage servers considered active by the naming server.",
		}),
	}
	return h
}

// Collector exposes the registry's Prometheus gauge for registration
// with a metrics registry.
func (h *HealthRegistry) Collector() prometheus.Collector {
	return h.activeGauge
}

func key(host string, port uint16) string {
	return host + ":" + strconv.Itoa(int(port))
}

// ReceiveHeartbeat refreshes or creates a record for (host, port),
// marking it active. Drops the heartbeat with a warning if the registry
// is at capacity and this is a new server.
func (h *HealthRegistry) ReceiveHeartbeat(host string, port uint16, load int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := key(host, port)
	now := time.Now()
	if rec, ok := h.records[k]; ok {
		rec.LastHeartbeat = now
		rec.Load = load
		rec.Active = true
		h.refreshGaugeLocked()
		return
	}

	if len(h.records) >= MaxStorageServers {
		h.log.Warn("health registry at capacity (%d), dropping heartbeat from %s", MaxStorageServers, k)
		return
	}

	h.records[k] = &ssRecord{Host: host, Port: port, LastHeartbeat: now, Load: load, Active: true}
	h.order = append(h.order, k)
	h.refreshGaugeLocked()
}

// GetActive returns a snapshot of every active record in insertion
// order; it does not sort by load (Lowest does the load selection).
// Returns protocol.NotFound if none are active.
func (h *HealthRegistry) GetActive() ([]StorageRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]StorageRecord, 0, len(h.order))
	for _, k := range h.order {
		rec, ok := h.records[k]
		if !ok || !rec.Active {
			continue
		}
		out = append(out, StorageRecord{
			Host: rec.Host, Port: rec.Port,
			LastHeartbeat: rec.LastHeartbeat, Load: rec.Load, Active: rec.Active,
		})
	}
	if len(out) == 0 {
		return nil, protocol.NotFound
	}
	return out, nil
}

// Lowest returns the active record with the lowest load (ties broken by
// insertion order), used by the router to pick a target SS.
func (h *HealthRegistry) Lowest() (StorageRecord, error) {
	active, err := h.GetActive()
	if err != nil {
		return StorageRecord{}, err
	}
	best := active[0]
	for _, rec := range active[1:] {
		if rec.Load < best.Load {
			best = rec
		}
	}
	return best, nil
}

func (h *HealthRegistry) refreshGaugeLocked() {
	count := 0
	for _, rec := range h.records {
		if rec.Active {
			count++
		}
	}
	h.activeGauge.Set(float64(count))
}

// Sweep marks inactive any record whose last heartbeat is older than
// HeartbeatTimeout. Called every 15s by RunSweeper.
func (h *HealthRegistry) Sweep() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-HeartbeatTimeout)
	for k, rec := range h.records {
		if rec.Active && rec.LastHeartbeat.Before(cutoff) {
			rec.Active = false
			h.log.Debug("storage server %s marked inactive (silent since %s)", k, rec.LastHeartbeat)
		}
	}
	h.refreshGaugeLocked()
}

// RunSweeper blocks, sweeping every HeartbeatTimeout interval, until ctx
// is cancelled.
func (h *HealthRegistry) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(HeartbeatTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Sweep()
		}
	}
}
