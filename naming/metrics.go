package naming

import "github.com/prometheus/client_golang/prometheus"

// RegisterMetrics registers the server's collectors with reg so that
// operational counters are exposed over Prometheus.
func (s *Server) RegisterMetrics(reg *prometheus.Registry) error {
	return reg.Register(s.health.Collector())
}
