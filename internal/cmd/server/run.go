package serverrun

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/logmux/internal/catalog"
	cfgpkg "github.com/rzbill/logmux/internal/config"
	"github.com/rzbill/logmux/internal/runtime"
	grpcserver "github.com/rzbill/logmux/internal/server/grpc"
	httpserver "github.com/rzbill/logmux/internal/server/http"
	"github.com/rzbill/logmux/internal/streams"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

// Addrs are the bound listener addresses, reported once both servers listen.
type Addrs struct {
	GRPC string
	HTTP string
}

type Options struct {
	Config cfgpkg.Config
	// Spec defaults to catalog.Default().
	Spec *streams.Spec
	// Logger defaults to one built from Config.Log.
	Logger logpkg.Logger
	// Ready, when set, is called with the bound addresses.
	Ready func(Addrs)
}

// Run opens the runtime, serves gRPC and HTTP, and blocks until ctx is
// cancelled or a server fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		if logger, err = logpkg.ApplyConfig(&cfg.Log); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		// Redirect stdlib logs (e.g., Pebble) to our logger
		logpkg.RedirectStdLog(logger)
	}
	spec := opts.Spec
	if spec == nil {
		spec = catalog.Default()
	}

	rt, err := runtime.Open(runtime.Options{Config: cfg, Spec: spec, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	glis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	hlis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = glis.Close()
		return err
	}

	logger.Info("starting logmux server",
		logpkg.Str("node", cfg.NodeID),
		logpkg.Str("mode", cfg.Replication.Mode),
		logpkg.Str("grpc", glis.Addr().String()),
		logpkg.Str("http", hlis.Addr().String()),
		logpkg.Str("dataDir", cfg.DataDir),
		logpkg.Str("fingerprint", fmt.Sprintf("%x", spec.Fingerprint())))

	gsrv := grpcserver.New(rt.Follower(), logger)
	gsrv.SetFingerprint(spec.Fingerprint())
	gsrv.SetServing(true)
	hsrv := httpserver.New(rt, logger)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return gsrv.Serve(gctx, glis) })
	g.Go(func() error { return hsrv.Serve(gctx, hlis) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-rt.Demultiplexer().Done():
			if err := rt.Demultiplexer().Err(); err != nil {
				gsrv.SetServing(false)
				return fmt.Errorf("demultiplexer halted: %w", err)
			}
			return nil
		}
	})
	if opts.Ready != nil {
		opts.Ready(Addrs{GRPC: glis.Addr().String(), HTTP: hlis.Addr().String()})
	}

	err = g.Wait()
	logger.Info("logmux server stopped")
	return err
}
