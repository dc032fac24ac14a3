// Package raftlog implements replog.Leader and replog.Follower on top of
// hashicorp/raft. Raft's log and stable state are stored in Pebble; committed
// commands are applied into an event log whose dense indices are the ones
// exposed to readers.
package raftlog
