// Package serverrun exposes the Run entrypoint the CLI uses to start a
// logmux node: the runtime plus its gRPC replication and HTTP servers.
//
// Example:
//
//	cfg := config.Default()
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
