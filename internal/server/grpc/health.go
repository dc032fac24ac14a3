package grpcserver

import (
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SetServing reports the overall and replication service status to health
// checkers.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(replicationService, st)
}
