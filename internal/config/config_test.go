package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if _, err := uuid.Parse(cfg.NodeID); err != nil {
		t.Fatalf("default node id should be a uuid: %v", err)
	}
	if cfg.Replication.Mode != ModeLocal {
		t.Fatalf("default mode = %q", cfg.Replication.Mode)
	}
	if cfg.Demux.ReadBatch != 256 {
		t.Fatalf("default read batch = %d", cfg.Demux.ReadBatch)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadByExtension(t *testing.T) {
	want := Replication{
		Mode:           ModeRaft,
		LogName:        "mux",
		RaftBind:       "127.0.0.1:9000",
		Bootstrap:      true,
		Peers:          []Peer{{ID: "n2", Addr: "127.0.0.1:9001"}},
		ApplyTimeoutMs: 5000,
	}
	files := map[string]string{
		"logmux.json": `{"nodeId":"n1","replication":{"mode":"raft","raftBind":"127.0.0.1:9000","bootstrap":true,"peers":[{"id":"n2","addr":"127.0.0.1:9001"}]}}`,
		"logmux.yaml": `
nodeId: n1
replication:
  mode: raft
  raftBind: 127.0.0.1:9000
  bootstrap: true
  peers:
    - id: n2
      addr: 127.0.0.1:9001
`,
		"logmux.toml": `
nodeId = "n1"

[replication]
mode = "raft"
raftBind = "127.0.0.1:9000"
bootstrap = true

[[replication.peers]]
id = "n2"
addr = "127.0.0.1:9001"
`,
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, name, body))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.NodeID != "n1" {
				t.Fatalf("node id = %q", cfg.NodeID)
			}
			if diff := cmp.Diff(want, cfg.Replication); diff != "" {
				t.Fatalf("replication mismatch (-want +got):\n%s", diff)
			}
			if cfg.GRPCAddr != ":7070" {
				t.Fatalf("unset fields should keep defaults, got grpc %q", cfg.GRPCAddr)
			}
		})
	}
}

func TestLoadParseError(t *testing.T) {
	if _, err := Load(writeFile(t, "bad.json", "{")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("LOGMUX_REPLICATION_MODE", "mirror")
	t.Setenv("LOGMUX_UPSTREAM", "leader:7070")
	t.Setenv("LOGMUX_DEMUX_READ_BATCH", "32")
	t.Setenv("LOGMUX_RAFT_BOOTSTRAP", "true")
	t.Setenv("LOGMUX_RAFT_PEERS", "a=h1:1, b=h2:2,broken")
	t.Setenv("LOGMUX_LOG_LEVEL", "debug")
	FromEnv(&cfg)
	if cfg.Replication.Mode != ModeMirror || cfg.Replication.Upstream != "leader:7070" {
		t.Fatalf("env override replication: %+v", cfg.Replication)
	}
	if cfg.Demux.ReadBatch != 32 {
		t.Fatalf("env override read batch")
	}
	if !cfg.Replication.Bootstrap {
		t.Fatalf("env override bootstrap")
	}
	if diff := cmp.Diff([]Peer{{ID: "a", Addr: "h1:1"}, {ID: "b", Addr: "h2:2"}}, cfg.Replication.Peers); diff != "" {
		t.Fatalf("peers (-want +got):\n%s", diff)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("env override log level")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"mirror without upstream", func(c *Config) { c.Replication.Mode = ModeMirror }, false},
		{"mirror", func(c *Config) { c.Replication.Mode = ModeMirror; c.Replication.Upstream = "x:1" }, true},
		{"raft without bind", func(c *Config) { c.Replication.Mode = ModeRaft; c.Replication.RaftBind = "" }, false},
		{"unknown mode", func(c *Config) { c.Replication.Mode = "paxos" }, false},
		{"bad fsync", func(c *Config) { c.Fsync = "sometimes" }, false},
		{"no data dir", func(c *Config) { c.DataDir = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, ok want %v", err, tt.ok)
			}
		})
	}
}
