package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/raft"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	cfgpkg "github.com/rzbill/logmux/internal/config"
	"github.com/rzbill/logmux/internal/eventlog"
	"github.com/rzbill/logmux/internal/replog"
	"github.com/rzbill/logmux/internal/replog/mirror"
	"github.com/rzbill/logmux/internal/replog/raftlog"
	grpcserver "github.com/rzbill/logmux/internal/server/grpc"
	pebblestore "github.com/rzbill/logmux/internal/storage/pebble"
	"github.com/rzbill/logmux/internal/streams"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

const metricsNamespace = "logmux"

var errReadOnly = errors.New("runtime: mirror replicas are read-only")

// ErrNotRaft is returned by cluster membership calls outside raft mode.
var ErrNotRaft = errors.New("runtime: not a raft replica")

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Spec declares the streams carried by the log. Every replica must use
	// the same spec.
	Spec   *streams.Spec
	Logger logpkg.Logger
	// Registry receives the runtime's collectors; a private registry is
	// created when nil.
	Registry *prometheus.Registry
	// RaftTransport replaces the raft TCP transport, mostly for tests.
	RaftTransport raft.Transport
}

// Runtime wires storage, the replicated log and the stream layer for one node.
type Runtime struct {
	cfg      cfgpkg.Config
	spec     *streams.Spec
	logger   logpkg.Logger
	registry *prometheus.Registry

	db       *pebblestore.DB
	follower replog.Follower
	leader   replog.Leader
	closer   func() error

	local  *replog.Local
	node   *raftlog.Node
	mirror    *mirror.Mirror
	mirrorErr atomic.Pointer[error]
	conn      *grpc.ClientConn

	// muxMu guards mux, which a raft node holds only while it leads.
	muxMu      sync.RWMutex
	mux        *streams.Multiplexer
	muxClosed  bool
	streamOpts []streams.Option
	demux      *streams.Demultiplexer

	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// StoreDir is where the pebble store of a data dir lives.
func StoreDir(dataDir string) string { return filepath.Join(dataDir, "store") }

// Open initializes storage, opens the log for the configured replication
// mode and starts the demultiplexer.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Spec == nil {
		return nil, errors.New("runtime: Options.Spec is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	storeMetrics := pebblestore.NewPromMetrics(metricsNamespace)
	streamMetrics := streams.NewMetrics(metricsNamespace)
	for _, c := range append(storeMetrics.PrometheusCollectors(), streamMetrics.PrometheusCollectors()...) {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("runtime: register metrics: %w", err)
		}
	}

	fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return nil, err
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: StoreDir(cfg.DataDir),
		Fsync:   fsync,
		Metrics: storeMetrics,
	})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		cfg:      cfg,
		spec:     opts.Spec,
		logger:   logger.WithField("node", cfg.NodeID),
		registry: registry,
		db:       db,
	}
	if err := rt.openLog(opts); err != nil {
		_ = db.Close()
		return nil, err
	}

	streamOpts := []streams.Option{
		streams.WithLogger(rt.logger),
		streams.WithMetrics(streamMetrics),
		streams.WithReadBatch(cfg.Demux.ReadBatch),
	}
	rt.streamOpts = streamOpts
	if rt.local != nil {
		rt.mux = streams.NewMultiplexer(rt.spec, rt.leader, streamOpts...)
	}
	rt.demux = streams.NewDemultiplexer(rt.spec, rt.follower, streamOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	if err := rt.demux.Listen(ctx); err != nil {
		cancel()
		_ = rt.closer()
		_ = db.Close()
		return nil, err
	}
	if rt.node != nil {
		rt.wg.Add(1)
		go rt.followLeadership(ctx, rt.node.LeaderCh())
	}
	if rt.mirror != nil {
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			if err := rt.mirror.Run(ctx); err != nil {
				rt.mirrorErr.Store(&err)
				rt.logger.Error("mirror stopped", logpkg.Err(err))
			}
		}()
	}
	rt.logger.Info("runtime opened",
		logpkg.Str("mode", cfg.Replication.Mode),
		logpkg.Str("dataDir", cfg.DataDir),
		logpkg.Uint64("commitIndex", rt.follower.CommitIndex()))
	return rt, nil
}

func (r *Runtime) openLog(opts Options) error {
	cfg := r.cfg
	switch cfg.Replication.Mode {
	case cfgpkg.ModeLocal:
		elog, err := eventlog.OpenLog(r.db, cfg.Replication.LogName)
		if err != nil {
			return err
		}
		local, err := replog.NewLocal(elog, replog.WithLocalLogger(r.logger))
		if err != nil {
			_ = elog.Close()
			return err
		}
		r.local, r.leader, r.follower, r.closer = local, local, local.Reader(), local.Close
	case cfgpkg.ModeRaft:
		peers := make([]raftlog.Peer, len(cfg.Replication.Peers))
		for i, p := range cfg.Replication.Peers {
			peers[i] = raftlog.Peer{ID: p.ID, Addr: p.Addr}
		}
		node, err := raftlog.Open(r.db, raftlog.Config{
			ID:           cfg.NodeID,
			Bind:         cfg.Replication.RaftBind,
			SnapshotDir:  filepath.Join(cfg.DataDir, "snapshots"),
			Bootstrap:    cfg.Replication.Bootstrap,
			Peers:        peers,
			LogName:      cfg.Replication.LogName,
			ApplyTimeout: cfg.ApplyTimeout(),
			Transport:    opts.RaftTransport,
			Logger:       r.logger,
		})
		if err != nil {
			return err
		}
		r.node, r.leader, r.follower, r.closer = node, node, node, node.Close
	case cfgpkg.ModeMirror:
		elog, err := eventlog.OpenLog(r.db, cfg.Replication.LogName)
		if err != nil {
			return err
		}
		conn, err := grpc.NewClient(cfg.Replication.Upstream, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			_ = elog.Close()
			return fmt.Errorf("runtime: dial upstream: %w", err)
		}
		m := mirror.New(elog, grpcserver.NewClient(conn),
			mirror.WithLogger(r.logger),
			mirror.WithFingerprint(r.spec.Fingerprint()))
		r.mirror, r.conn, r.follower = m, conn, m
		r.closer = func() error {
			var result *multierror.Error
			result = multierror.Append(result, m.Close())
			result = multierror.Append(result, conn.Close())
			return result.ErrorOrNil()
		}
	}
	return nil
}

// followLeadership keeps a Multiplexer open exactly while the raft node leads.
func (r *Runtime) followLeadership(ctx context.Context, ch <-chan bool) {
	defer r.wg.Done()
	r.setLeading(r.node.IsLeader())
	for {
		select {
		case <-ctx.Done():
			return
		case leading := <-ch:
			r.setLeading(leading)
		}
	}
}

func (r *Runtime) setLeading(leading bool) {
	r.muxMu.Lock()
	defer r.muxMu.Unlock()
	switch {
	case r.muxClosed:
	case leading && r.mux == nil:
		r.mux = streams.NewMultiplexer(r.spec, r.leader, r.streamOpts...)
		r.logger.Info("leadership acquired, accepting inserts")
	case !leading && r.mux != nil:
		if err := r.mux.Close(); err != nil {
			r.logger.Warn("close multiplexer", logpkg.Err(err))
		}
		r.mux = nil
		r.logger.Info("leadership lost, rejecting inserts")
	}
}

// Join adds a voting replica to the raft cluster. Only the leader can add
// members.
func (r *Runtime) Join(id, addr string) error {
	if r.node == nil {
		return ErrNotRaft
	}
	if !r.node.IsLeader() {
		return &streams.NotLeaderError{Cause: replog.ErrNotLeader}
	}
	if err := r.node.Join(id, addr); err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			return &streams.NotLeaderError{Cause: replog.ErrNotLeader}
		}
		return fmt.Errorf("runtime: join %s at %s: %w", id, addr, err)
	}
	r.logger.Info("replica joined", logpkg.Str("peer", id), logpkg.Str("addr", addr))
	return nil
}

// Spec returns the stream spec the runtime was opened with.
func (r *Runtime) Spec() *streams.Spec { return r.spec }

// Multiplexer returns the write side. Mirrors never accept writes and a raft
// node only accepts them while it leads.
func (r *Runtime) Multiplexer() (*streams.Multiplexer, error) {
	r.muxMu.RLock()
	defer r.muxMu.RUnlock()
	switch {
	case r.mux != nil:
		return r.mux, nil
	case r.node != nil:
		return nil, &streams.NotLeaderError{Cause: replog.ErrNotLeader}
	default:
		return nil, &streams.NotLeaderError{Cause: errReadOnly}
	}
}

func (r *Runtime) Demultiplexer() *streams.Demultiplexer { return r.demux }

// Follower is the committed log this node reads, and serves to mirrors.
func (r *Runtime) Follower() replog.Follower { return r.follower }

func (r *Runtime) Registry() *prometheus.Registry { return r.registry }

// Raft returns the raft node in raft mode, nil otherwise.
func (r *Runtime) Raft() *raftlog.Node { return r.node }

// Local returns the single-node log in local mode, nil otherwise.
func (r *Runtime) Local() *replog.Local { return r.local }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.cfg }

// IsLeader reports whether inserts on this node can currently succeed.
func (r *Runtime) IsLeader() bool {
	switch {
	case r.local != nil:
		return r.local.IsLeader()
	case r.node != nil:
		return r.node.IsLeader()
	}
	return false
}

// CheckHealth reports storage failures and a halted demultiplexer.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := r.db.Ping(); err != nil {
		return err
	}
	if err := r.demux.Err(); err != nil {
		return fmt.Errorf("demultiplexer halted: %w", err)
	}
	if err := r.mirrorErr.Load(); err != nil {
		return fmt.Errorf("mirror halted: %w", *err)
	}
	return nil
}

// StreamStatus describes one declared stream.
type StreamStatus struct {
	ID       streams.StreamID    `json:"id"`
	Name     string              `json:"name"`
	Type     string              `json:"type"`
	Tags     []streams.StreamTag `json:"tags"`
	Buffered int                 `json:"buffered"`
}

// Status is a point-in-time view of the node.
type Status struct {
	NodeID       string            `json:"nodeId"`
	Mode         string            `json:"mode"`
	Leader       bool              `json:"leader"`
	Fingerprint  string            `json:"fingerprint"`
	FirstIndex   uint64            `json:"firstIndex"`
	CommitIndex  uint64            `json:"commitIndex"`
	AppliedIndex uint64            `json:"appliedIndex"`
	PendingWaits int               `json:"pendingWaits"`
	LogBytes     int64             `json:"logBytes"`
	Streams      []StreamStatus    `json:"streams"`
	Raft         map[string]string `json:"raft,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func (r *Runtime) Status() Status {
	st := Status{
		NodeID:       r.cfg.NodeID,
		Mode:         r.cfg.Replication.Mode,
		Leader:       r.IsLeader(),
		Fingerprint:  strconv.FormatUint(r.spec.Fingerprint(), 16),
		FirstIndex:   r.follower.FirstIndex(),
		CommitIndex:  r.follower.CommitIndex(),
		AppliedIndex: r.demux.AppliedIndex(),
		PendingWaits: r.demux.PendingWaits(),
	}
	if s, ok := r.follower.(interface{ StoredBytes() (int64, error) }); ok {
		if n, err := s.StoredBytes(); err == nil {
			st.LogBytes = n
		}
	}
	for _, d := range r.spec.Streams() {
		ss := StreamStatus{ID: d.ID, Name: d.Name, Type: d.ValueType.String(), Tags: d.Tags()}
		if c, err := r.demux.Stream(d.ID); err == nil {
			ss.Buffered = c.Len()
		}
		st.Streams = append(st.Streams, ss)
	}
	if r.node != nil {
		st.Raft = r.node.Stats()
	}
	if err := r.demux.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Compact releases log entries every stream has released.
func (r *Runtime) Compact(ctx context.Context) (uint64, error) {
	return r.demux.Compact(ctx)
}

// Close stops the stream layer, then the log, then storage.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		var result *multierror.Error
		r.muxMu.Lock()
		r.muxClosed = true
		if r.mux != nil {
			result = multierror.Append(result, r.mux.Close())
			r.mux = nil
		}
		r.muxMu.Unlock()
		result = multierror.Append(result, r.demux.Close())
		r.cancel()
		result = multierror.Append(result, r.closer())
		r.wg.Wait()
		result = multierror.Append(result, r.db.Close())
		r.closeErr = result.ErrorOrNil()
		r.logger.Info("runtime closed")
	})
	return r.closeErr
}
