package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays LOGMUX_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("LOGMUX_NODE_ID", &cfg.NodeID)
	if v := os.Getenv("LOGMUX_DATA_DIR"); v != "" {
		cfg.DataDir = ExpandHome(v)
	}
	str("LOGMUX_FSYNC", &cfg.Fsync)
	str("LOGMUX_GRPC_ADDR", &cfg.GRPCAddr)
	str("LOGMUX_HTTP_ADDR", &cfg.HTTPAddr)
	str("LOGMUX_LOG_LEVEL", &cfg.Log.Level)
	str("LOGMUX_LOG_FORMAT", &cfg.Log.Format)
	str("LOGMUX_REPLICATION_MODE", &cfg.Replication.Mode)
	str("LOGMUX_REPLICATION_LOG_NAME", &cfg.Replication.LogName)
	str("LOGMUX_RAFT_BIND", &cfg.Replication.RaftBind)
	str("LOGMUX_UPSTREAM", &cfg.Replication.Upstream)

	if v := os.Getenv("LOGMUX_RAFT_BOOTSTRAP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Replication.Bootstrap = b
		}
	}
	if v := os.Getenv("LOGMUX_RAFT_APPLY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Replication.ApplyTimeoutMs = n
		}
	}
	if v := os.Getenv("LOGMUX_DEMUX_READ_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Demux.ReadBatch = n
		}
	}
	// LOGMUX_RAFT_PEERS=id1=host:port,id2=host:port
	if v := os.Getenv("LOGMUX_RAFT_PEERS"); v != "" {
		cfg.Replication.Peers = nil
		for _, p := range strings.Split(v, ",") {
			id, addr, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || id == "" || addr == "" {
				continue
			}
			cfg.Replication.Peers = append(cfg.Replication.Peers, Peer{ID: id, Addr: addr})
		}
	}
}
