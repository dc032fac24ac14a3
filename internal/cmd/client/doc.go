// Package client provides the client side of the `logmux` command line.
//
// # Address configuration
//
// The HTTP base URL is supplied by the embedding binary through a
// BaseURLFunc (the logmux binary reads LOGMUX_HTTP, default
// http://127.0.0.1:7080). The gRPC address is read from LOGMUX_GRPC
// (default 127.0.0.1:7070).
//
// Usage
//
//	logmux demo
//
//	logmux stream list
//	logmux stream insert --name notes --value '"hello"'
//	logmux stream entries --name notes --from 10 --limit 5
//	logmux stream wait --name notes --index 12 --timeout-ms 2000
//	logmux status
//
//	# Follow new commits over gRPC, keeping only counters above 100
//	logmux tail --filter 'name == "counters" && json > 100.0'
//
//	# Dump a stopped node's data dir
//	logmux dump --data-dir /var/lib/logmux --filter 'stream == 3 && text.contains("deploy")'
//
// Notes
//
//   - demo runs entirely in-process on a temporary data dir.
//   - dump opens the pebble store directly, so the server must be stopped.
//   - tail and dump print one JSON object per entry; entries the catalog
//     cannot decode keep their raw payload and an error field.
package client
