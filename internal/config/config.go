package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	logpkg "github.com/rzbill/logmux/pkg/log"
)

// Replication modes.
const (
	ModeLocal  = "local"
	ModeRaft   = "raft"
	ModeMirror = "mirror"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	NodeID   string        `json:"nodeId" yaml:"nodeId" toml:"nodeId"`
	DataDir  string        `json:"dataDir" yaml:"dataDir" toml:"dataDir"`
	Fsync    string        `json:"fsync" yaml:"fsync" toml:"fsync"`
	GRPCAddr string        `json:"grpcAddr" yaml:"grpcAddr" toml:"grpcAddr"`
	HTTPAddr string        `json:"httpAddr" yaml:"httpAddr" toml:"httpAddr"`
	Log      logpkg.Config `json:"log" yaml:"log" toml:"log"`

	Replication Replication `json:"replication" yaml:"replication" toml:"replication"`
	Demux       Demux       `json:"demux" yaml:"demux" toml:"demux"`
}

// Replication selects how the log is replicated.
type Replication struct {
	// Mode is one of local, raft or mirror.
	Mode string `json:"mode" yaml:"mode" toml:"mode"`
	// LogName names the event log inside the data dir.
	LogName string `json:"logName" yaml:"logName" toml:"logName"`

	RaftBind       string `json:"raftBind" yaml:"raftBind" toml:"raftBind"`
	Bootstrap      bool   `json:"bootstrap" yaml:"bootstrap" toml:"bootstrap"`
	Peers          []Peer `json:"peers" yaml:"peers" toml:"peers"`
	ApplyTimeoutMs int    `json:"applyTimeoutMs" yaml:"applyTimeoutMs" toml:"applyTimeoutMs"`

	// Upstream is the gRPC address a mirror tails.
	Upstream string `json:"upstream" yaml:"upstream" toml:"upstream"`
}

// Peer is a raft voter.
type Peer struct {
	ID   string `json:"id" yaml:"id" toml:"id"`
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
}

// Demux tunes the demultiplexer.
type Demux struct {
	ReadBatch int `json:"readBatch" yaml:"readBatch" toml:"readBatch"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		NodeID:   uuid.NewString(),
		DataDir:  DefaultDataDir(),
		Fsync:    "always",
		GRPCAddr: ":7070",
		HTTPAddr: ":7080",
		Log:      logpkg.Config{Level: "info", Format: "text"},
		Replication: Replication{
			Mode:           ModeLocal,
			LogName:        "mux",
			RaftBind:       "127.0.0.1:7090",
			ApplyTimeoutMs: 5000,
		},
		Demux: Demux{ReadBatch: 256},
	}
}

// ApplyTimeout returns the raft apply timeout.
func (c Config) ApplyTimeout() time.Duration {
	return time.Duration(c.Replication.ApplyTimeoutMs) * time.Millisecond
}

// Validate reports configuration that cannot be opened.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: dataDir is required")
	}
	if c.Replication.LogName == "" {
		return fmt.Errorf("config: replication.logName is required")
	}
	switch c.Replication.Mode {
	case ModeLocal:
	case ModeRaft:
		if c.NodeID == "" || c.Replication.RaftBind == "" {
			return fmt.Errorf("config: raft mode needs nodeId and replication.raftBind")
		}
	case ModeMirror:
		if c.Replication.Upstream == "" {
			return fmt.Errorf("config: mirror mode needs replication.upstream")
		}
	default:
		return fmt.Errorf("config: unknown replication mode %q", c.Replication.Mode)
	}
	switch strings.ToLower(c.Fsync) {
	case "", "always", "interval", "never":
	default:
		return fmt.Errorf("config: unknown fsync mode %q", c.Fsync)
	}
	return nil
}

// Load reads configuration from a JSON, YAML or TOML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.DataDir = ExpandHome(cfg.DataDir)
	return cfg, nil
}
