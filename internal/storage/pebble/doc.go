// Package pebblestore is the single Pebble database behind a logmux node.
//
// Event logs, the raft log store and raft's stable store share one DB, each
// under its own key prefix. Writes go through CommitBatch so the configured
// FsyncMode applies uniformly; PromMetrics exports latency and byte counters.
//
//	mode, _ := pebblestore.ParseFsyncMode(cfg.Fsync)
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: runtime.StoreDir(cfg.DataDir),
//	    Fsync:   mode,
//	    Metrics: pebblestore.NewPromMetrics("logmux"),
//	})
package pebblestore
