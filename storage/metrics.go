package storage

import "github.com/prometheus/client_golang/prometheus"

// RegisterMetrics registers the server's collectors with reg.
func (s *Server) RegisterMetrics(reg *prometheus.Registry) error {
	return reg.Register(s.reporter.Collector())
}
