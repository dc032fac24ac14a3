// Package replog defines the replicated log that logmux multiplexes over.
//
// A Leader appends opaque entries and learns their committed index; a
// Follower reads the committed prefix in index order and can block until
// more entries commit. Local is a single-replica implementation over the
// pebble event log; package raftlog provides a hashicorp/raft backed one and
// package mirror a read replica fed over gRPC.
package replog
