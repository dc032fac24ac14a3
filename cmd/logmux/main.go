package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/logmux/internal/cmd/client"
	serverrun "github.com/rzbill/logmux/internal/cmd/server"
	cfgpkg "github.com/rzbill/logmux/internal/config"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

func main() {
	// Respect LOGMUX_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("LOGMUX_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:           "logmux",
		Short:         "Typed streams multiplexed over one replicated log",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start a logmux node (gRPC replication + HTTP API)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	f := serverStartCmd.Flags()
	f.String("config", os.Getenv("LOGMUX_CONFIG"), "Config file (.json, .yaml, .toml)")
	f.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	f.String("node-id", "", "Node ID (default: random UUID, or the config file's)")
	f.String("grpc", "", "gRPC listen address")
	f.String("http", "", "HTTP listen address")
	f.String("fsync", "", "Fsync mode: always|interval|never")
	f.String("mode", "", "Replication mode: local|raft|mirror")
	f.String("raft-bind", "", "Raft listen address (raft mode)")
	f.Bool("bootstrap", false, "Bootstrap a new raft cluster (raft mode)")
	f.StringSlice("peer", nil, "Raft peer id=host:port (repeatable)")
	f.String("upstream", "", "gRPC address to mirror (mirror mode)")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	clientcmd.AddCommands(rootCmd, apiURL, logger)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, LOGMUX_* variables and flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfg, err
	}
	cfgpkg.FromEnv(&cfg)

	str := func(flag string, dst *string) {
		if cmd.Flags().Changed(flag) {
			*dst, _ = cmd.Flags().GetString(flag)
		}
	}
	str("data-dir", &cfg.DataDir)
	str("node-id", &cfg.NodeID)
	str("grpc", &cfg.GRPCAddr)
	str("http", &cfg.HTTPAddr)
	str("fsync", &cfg.Fsync)
	str("mode", &cfg.Replication.Mode)
	str("raft-bind", &cfg.Replication.RaftBind)
	str("upstream", &cfg.Replication.Upstream)
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	if cmd.Flags().Changed("bootstrap") {
		cfg.Replication.Bootstrap, _ = cmd.Flags().GetBool("bootstrap")
	}
	if cmd.Flags().Changed("peer") {
		peers, _ := cmd.Flags().GetStringSlice("peer")
		cfg.Replication.Peers = nil
		for _, p := range peers {
			id, addr, ok := strings.Cut(p, "=")
			if !ok {
				return cfg, fmt.Errorf("invalid --peer %q; want id=host:port", p)
			}
			cfg.Replication.Peers = append(cfg.Replication.Peers, cfgpkg.Peer{ID: id, Addr: addr})
		}
	}
	return cfg, cfg.Validate()
}

func apiURL() string {
	if v := os.Getenv("LOGMUX_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:7080"
}
