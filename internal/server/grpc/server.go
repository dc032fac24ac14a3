package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/rzbill/logmux/internal/replog"
	logpkg "github.com/rzbill/logmux/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server owns the gRPC server instance.
type Server struct {
	repl   *replicationSvc
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
	logger logpkg.Logger
}

// New constructs a gRPC server serving the replication service over
// follower plus the standard health service.
func New(follower replog.Follower, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	logger = logger.WithComponent("grpc")
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unaryLogger(logger)),
		grpc.ChainStreamInterceptor(streamLogger(logger)),
	}, opts...)
	s := &Server{
		repl:   &replicationSvc{follower: follower},
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
		logger: logger,
	}
	RegisterReplicationServer(s.grpc, s.repl)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// SetFingerprint advertises the spec digest mirrors compare before tailing.
func (s *Server) SetFingerprint(fp uint64) { s.repl.fingerprint.Store(fp) }

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	s.logger.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener. Open Tail streams are
// cancelled rather than drained.
func (s *Server) Close() {
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpc != nil {
		s.grpc.Stop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func unaryLogger(l logpkg.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			l.Warn("rpc failed", logpkg.Str("method", info.FullMethod), logpkg.Duration("elapsed", time.Since(start)), logpkg.Err(err))
		} else {
			l.Debug("rpc", logpkg.Str("method", info.FullMethod), logpkg.Duration("elapsed", time.Since(start)))
		}
		return resp, err
	}
}

func streamLogger(l logpkg.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		l.Debug("stream opened", logpkg.Str("method", info.FullMethod))
		err := handler(srv, ss)
		l.Debug("stream closed", logpkg.Str("method", info.FullMethod), logpkg.Duration("elapsed", time.Since(start)), logpkg.Err(err))
		return err
	}
}
