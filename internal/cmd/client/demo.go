package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/rzbill/logmux/internal/catalog"
	"github.com/rzbill/logmux/internal/eventlog"
	"github.com/rzbill/logmux/internal/replog"
	pebblestore "github.com/rzbill/logmux/internal/storage/pebble"
	"github.com/rzbill/logmux/internal/streams"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

type demoEntry struct {
	Index uint64 `json:"index"`
	Value any    `json:"value"`
}

type demoWait struct {
	Index uint64 `json:"index"`
	Found bool   `json:"found"`
	Value int64  `json:"value"`
	// Applied is the demultiplexer's applied index observed right after the
	// wait resolved.
	Applied uint64 `json:"applied"`
}

type demoReport struct {
	Fingerprint string                 `json:"fingerprint"`
	Inserted    []uint64               `json:"inserted"`
	Wait        demoWait               `json:"waitFor"`
	Streams     map[string][]demoEntry `json:"streams"`
}

// NewDemoCommand constructs the `demo` command: the two-stream scenario run
// end to end on a throwaway local log.
func NewDemoCommand(logger logpkg.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Multiplex two streams over a local log and print both inboxes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := os.MkdirTemp("", "logmux-demo-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			report, err := runDemo(cmd.Context(), dir, logger)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	return cmd
}

// runDemo inserts A=12, B="foo", A=13, B="bar", A=14 through a multiplexer
// while a demultiplexer routes them, with a wait on stream A for index 5
// registered before the first insert.
func runDemo(ctx context.Context, dir string, logger logpkg.Logger) (report demoReport, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		return report, err
	}
	elog, err := eventlog.OpenLog(db, "demo")
	if err != nil {
		_ = db.Close()
		return report, err
	}
	leader, err := replog.NewLocal(elog, replog.WithLocalLogger(logger))
	if err != nil {
		_ = elog.Close()
		_ = db.Close()
		return report, err
	}

	spec := catalog.Demo()
	mux := streams.NewMultiplexer(spec, leader, streams.WithLogger(logger))
	demux := streams.NewDemultiplexer(spec, leader.Reader(), streams.WithLogger(logger))
	defer func() {
		var result *multierror.Error
		result = multierror.Append(result, mux.Close(), demux.Close(), leader.Close(), db.Close())
		if cerr := result.ErrorOrNil(); err == nil {
			err = cerr
		}
	}()

	a, err := streams.ConsumerFor[int64](demux, 1)
	if err != nil {
		return report, err
	}
	b, err := streams.ConsumerFor[string](demux, 2)
	if err != nil {
		return report, err
	}
	pa, err := streams.ProducerFor[int64](mux, 1)
	if err != nil {
		return report, err
	}
	pb, err := streams.ProducerFor[string](mux, 2)
	if err != nil {
		return report, err
	}

	wait := a.WaitFor(5)
	if err := demux.Listen(ctx); err != nil {
		return report, err
	}

	inserts := []func() (streams.LogIndex, error){
		func() (streams.LogIndex, error) { return pa.Insert(ctx, 12) },
		func() (streams.LogIndex, error) { return pb.Insert(ctx, "foo") },
		func() (streams.LogIndex, error) { return pa.Insert(ctx, 13) },
		func() (streams.LogIndex, error) { return pb.Insert(ctx, "bar") },
		func() (streams.LogIndex, error) { return pa.Insert(ctx, 14) },
	}
	for _, insert := range inserts {
		idx, err := insert()
		if err != nil {
			return report, err
		}
		report.Inserted = append(report.Inserted, idx)
	}

	res, err := wait.Wait(ctx)
	if err != nil {
		return report, fmt.Errorf("wait for index 5: %w", err)
	}
	report.Wait = demoWait{Index: res.Index, Found: res.Found, Value: res.Value, Applied: demux.AppliedIndex()}
	report.Fingerprint = fmt.Sprintf("%x", spec.Fingerprint())
	report.Streams = map[string][]demoEntry{"a": {}, "b": {}}
	for _, e := range a.Snapshot() {
		report.Streams["a"] = append(report.Streams["a"], demoEntry{Index: e.Index, Value: e.Value})
	}
	for _, e := range b.Snapshot() {
		report.Streams["b"] = append(report.Streams["b"], demoEntry{Index: e.Index, Value: e.Value})
	}
	return report, nil
}
