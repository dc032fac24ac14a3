package raftlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/raft"
	"github.com/rzbill/logmux/internal/eventlog"
	"github.com/rzbill/logmux/internal/replog"
	pebblestore "github.com/rzbill/logmux/internal/storage/pebble"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

// Peer is a voting member of the cluster.
type Peer struct {
	ID   string `json:"id" yaml:"id" toml:"id"`
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
}

// Config describes one raft replica.
type Config struct {
	// ID is this replica's raft server ID.
	ID string
	// Bind is the TCP address for raft traffic. Ignored when Transport is set.
	Bind string
	// SnapshotDir holds raft snapshots; in-memory snapshots when empty.
	SnapshotDir string
	// Bootstrap forms a new cluster from this replica and Peers when no
	// raft state exists yet.
	Bootstrap bool
	Peers     []Peer
	// LogName names the event log the FSM appends to.
	LogName string

	ApplyTimeout     time.Duration
	HeartbeatTimeout time.Duration
	ElectionTimeout  time.Duration

	// Transport overrides the TCP transport, mostly for tests.
	Transport raft.Transport
	Logger    logpkg.Logger
}

// Node is a raft replica. It is a replog.Leader while it holds leadership and
// a replog.Follower of the committed log at all times.
type Node struct {
	*replog.LogFollower

	raft         *raft.Raft
	log          *eventlog.Log
	transport    raft.Transport
	applyTimeout time.Duration
	logger       logpkg.Logger
}

// Open starts a raft replica whose raft state and committed entries live in db.
func Open(db *pebblestore.DB, cfg Config) (*Node, error) {
	if cfg.ID == "" {
		return nil, errors.New("raftlog: Config.ID is required")
	}
	if cfg.LogName == "" {
		cfg.LogName = "mux"
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	logger = logger.WithComponent("raft")
	raftOut := logpkg.ToWriter(logger, logpkg.InfoLevel)

	elog, err := eventlog.OpenLog(db, cfg.LogName)
	if err != nil {
		return nil, err
	}
	machine, err := newFSM(elog)
	if err != nil {
		return nil, err
	}
	store := NewStore(db, "raft/"+cfg.LogName)

	var snaps raft.SnapshotStore
	if cfg.SnapshotDir != "" {
		if err := os.MkdirAll(cfg.SnapshotDir, 0o755); err != nil {
			return nil, err
		}
		snaps, err = raft.NewFileSnapshotStore(cfg.SnapshotDir, 2, raftOut)
		if err != nil {
			return nil, err
		}
	} else {
		snaps = raft.NewInmemSnapshotStore()
	}

	trans := cfg.Transport
	if trans == nil {
		trans, err = raft.NewTCPTransport(cfg.Bind, nil, 3, 10*time.Second, raftOut)
		if err != nil {
			return nil, fmt.Errorf("raftlog: transport: %w", err)
		}
	}

	rc := raft.DefaultConfig()
	rc.LocalID = raft.ServerID(cfg.ID)
	rc.LogOutput = raftOut
	if cfg.HeartbeatTimeout > 0 {
		rc.HeartbeatTimeout = cfg.HeartbeatTimeout
		rc.LeaderLeaseTimeout = cfg.HeartbeatTimeout
	}
	if cfg.ElectionTimeout > 0 {
		rc.ElectionTimeout = cfg.ElectionTimeout
	}

	r, err := raft.NewRaft(rc, machine, store, store, snaps, trans)
	if err != nil {
		closeTransport(trans)
		return nil, err
	}

	if cfg.Bootstrap {
		has, err := raft.HasExistingState(store, store, snaps)
		if err != nil {
			_ = r.Shutdown().Error()
			return nil, err
		}
		if !has {
			servers := []raft.Server{{ID: rc.LocalID, Address: trans.LocalAddr()}}
			for _, p := range cfg.Peers {
				if p.ID == cfg.ID {
					continue
				}
				servers = append(servers, raft.Server{ID: raft.ServerID(p.ID), Address: raft.ServerAddress(p.Addr)})
			}
			if err := r.BootstrapCluster(raft.Configuration{Servers: servers}).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
				_ = r.Shutdown().Error()
				return nil, err
			}
		}
	}

	return &Node{
		LogFollower:  replog.NewLogFollower(elog),
		raft:         r,
		log:          elog,
		transport:    trans,
		applyTimeout: cfg.ApplyTimeout,
		logger:       logger,
	}, nil
}

// Append replicates data and returns its index once committed and applied
// locally.
func (n *Node) Append(ctx context.Context, data []byte) (replog.Index, error) {
	if n.raft.State() != raft.Leader {
		return 0, replog.ErrNotLeader
	}
	timeout := n.applyTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
		if timeout <= 0 {
			return 0, context.DeadlineExceeded
		}
	}
	f := n.raft.Apply(data, timeout)
	if err := f.Error(); err != nil {
		switch {
		case errors.Is(err, raft.ErrNotLeader), errors.Is(err, raft.ErrLeadershipLost):
			return 0, replog.ErrNotLeader
		case errors.Is(err, raft.ErrRaftShutdown):
			return 0, replog.ErrClosed
		}
		return 0, err
	}
	res, ok := f.Response().(applyResult)
	if !ok {
		return 0, fmt.Errorf("raftlog: unexpected apply response %T", f.Response())
	}
	return res.index, res.err
}

// Release trims applied entries through index but always keeps the newest
// one, whose header records how far the FSM has applied.
func (n *Node) Release(ctx context.Context, through replog.Index) error {
	if last := n.log.LastIndex(); through >= last {
		if last == 0 {
			return nil
		}
		through = last - 1
	}
	return n.LogFollower.Release(ctx, through)
}

func (n *Node) IsLeader() bool { return n.raft.State() == raft.Leader }

// LeaderCh reports leadership gains (true) and losses (false).
func (n *Node) LeaderCh() <-chan bool { return n.raft.LeaderCh() }

// WaitForLeader blocks until some replica is known to lead the cluster.
func (n *Node) WaitForLeader(ctx context.Context) error {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		if addr, _ := n.raft.LeaderWithID(); addr != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Join adds a voter. It must be called on the leader.
func (n *Node) Join(id, addr string) error {
	return n.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, n.applyTimeout).Error()
}

// Snapshot forces a raft snapshot, which lets raft compact its own log.
func (n *Node) Snapshot() error { return n.raft.Snapshot().Error() }

func (n *Node) Stats() map[string]string { return n.raft.Stats() }

// Close shuts raft down and closes the event log, ending waiting readers.
func (n *Node) Close() error {
	err := n.raft.Shutdown().Error()
	closeTransport(n.transport)
	if cerr := n.log.Close(); err == nil {
		err = cerr
	}
	return err
}

func closeTransport(t raft.Transport) {
	if c, ok := t.(io.Closer); ok {
		_ = c.Close()
	}
}
