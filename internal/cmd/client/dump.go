package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rzbill/logmux/internal/catalog"
	cfgpkg "github.com/rzbill/logmux/internal/config"
	"github.com/rzbill/logmux/internal/eventlog"
	"github.com/rzbill/logmux/internal/replog"
	"github.com/rzbill/logmux/internal/runtime"
	pebblestore "github.com/rzbill/logmux/internal/storage/pebble"
	"github.com/rzbill/logmux/internal/streams"
)

type dumpOptions struct {
	DataDir string
	LogName string
	From    uint64
	Limit   int
	Filter  celFilter
}

// NewDumpCommand constructs the `dump` command, which prints the committed
// entries of a stopped node's data dir.
func NewDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print committed log entries from a data dir (server must be stopped)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			logName, _ := cmd.Flags().GetString("log")
			from, _ := cmd.Flags().GetUint64("from")
			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")
			f, err := newCELFilter(filter)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			if dataDir == "" {
				dataDir = cfgpkg.DefaultDataDir()
			}
			_, err = runDump(cmd.Context(), cmd.OutOrStdout(), catalog.Default(), dumpOptions{
				DataDir: dataDir,
				LogName: logName,
				From:    from,
				Limit:   limit,
				Filter:  f,
			})
			return err
		},
	}
	cmd.Flags().String("data-dir", "", "Node data directory (defaults to the OS-specific location)")
	cmd.Flags().String("log", "mux", "Event log name")
	cmd.Flags().Uint64("from", 0, "First index to print (default: first retained)")
	cmd.Flags().Int("limit", 0, "Maximum entries to print (0 = all)")
	cmd.Flags().String("filter", "", "CEL expression over index, term, stream, name, tag, size, text, json")
	return cmd
}

// runDump writes one JSON line per matching entry and returns how many were
// written.
func runDump(ctx context.Context, w io.Writer, spec *streams.Spec, opts dumpOptions) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: runtime.StoreDir(opts.DataDir)})
	if err != nil {
		return 0, err
	}
	defer db.Close()
	elog, err := eventlog.OpenLog(db, opts.LogName)
	if err != nil {
		return 0, err
	}
	defer elog.Close()
	follower := replog.NewLogFollower(elog)

	enc := json.NewEncoder(w)
	next := max(opts.From, follower.FirstIndex(), 1)
	last := follower.CommitIndex()
	n := 0
	for next <= last {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		entries, err := follower.Read(next, 256)
		if err != nil {
			return n, err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			next = e.Index + 1
			r := renderEntry(spec, e)
			if !opts.Filter.Eval(r) {
				continue
			}
			if err := enc.Encode(r); err != nil {
				return n, err
			}
			n++
			if opts.Limit > 0 && n >= opts.Limit {
				return n, nil
			}
		}
	}
	return n, nil
}
