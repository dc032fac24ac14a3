package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rzbill/logmux/internal/catalog"
	grpcserver "github.com/rzbill/logmux/internal/server/grpc"
	"github.com/rzbill/logmux/internal/streams"
)

// NewTailCommand constructs the `tail` command, which follows a server's
// committed log over gRPC.
func NewTailCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow committed log entries over gRPC (LOGMUX_GRPC)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, _ := cmd.Flags().GetUint64("from")
			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")
			f, err := newCELFilter(filter)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return withReplicationClient(func(c *grpcserver.Client) error {
				if from == 0 {
					ci, err := c.CommitIndex(ctx)
					if err != nil {
						return err
					}
					from = ci + 1
				}
				return runTail(ctx, cmd.OutOrStdout(), c, catalog.Default(), from, limit, f)
			})
		},
	}
	cmd.Flags().Uint64("from", 0, "First index to print (default: entries committed from now on)")
	cmd.Flags().Int("limit", 0, "Stop after this many entries (0 = follow)")
	cmd.Flags().String("filter", "", "CEL expression over index, term, stream, name, tag, size, text, json")
	return cmd
}

func runTail(ctx context.Context, w io.Writer, c *grpcserver.Client, spec *streams.Spec, from uint64, limit int, f celFilter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := c.Tail(ctx, from)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	n := 0
	for {
		e, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if status.Code(err) == codes.Canceled && ctx.Err() != nil {
				return nil
			}
			return err
		}
		r := renderEntry(spec, e)
		if !f.Eval(r) {
			continue
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			return nil
		}
	}
}
