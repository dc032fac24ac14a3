package grpcserver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rzbill/logmux/internal/eventlog"
	"github.com/rzbill/logmux/internal/replog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	replicationService = "logmux.v1.Replication"
	tailMethod         = "/" + replicationService + "/Tail"
	commitIndexMethod  = "/" + replicationService + "/CommitIndex"
	fingerprintMethod  = "/" + replicationService + "/Fingerprint"
	tailBatch          = 256
)

// ReplicationServer streams the committed log to read replicas.
type ReplicationServer interface {
	CommitIndex(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error)
	// Fingerprint reports the stream spec digest of the serving node, or 0
	// when none was advertised.
	Fingerprint(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error)
	Tail(*wrapperspb.UInt64Value, grpc.ServerStream) error
}

var replicationServiceDesc = grpc.ServiceDesc{
	ServiceName: replicationService,
	HandlerType: (*ReplicationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CommitIndex", Handler: commitIndexHandler},
		{MethodName: "Fingerprint", Handler: fingerprintHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Tail", Handler: tailHandler, ServerStreams: true},
	},
	Metadata: "logmux/v1/replication.proto",
}

// RegisterReplicationServer registers srv on s.
func RegisterReplicationServer(s grpc.ServiceRegistrar, srv ReplicationServer) {
	s.RegisterService(&replicationServiceDesc, srv)
}

func commitIndexHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicationServer).CommitIndex(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: commitIndexMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReplicationServer).CommitIndex(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func fingerprintHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicationServer).Fingerprint(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fingerprintMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReplicationServer).Fingerprint(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func tailHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.UInt64Value)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ReplicationServer).Tail(in, stream)
}

// EncodeTailRecord frames a log entry for the wire: an event log record whose
// header is the big-endian index followed by the term.
func EncodeTailRecord(e replog.Entry) []byte {
	h := make([]byte, 0, 16)
	h = binary.BigEndian.AppendUint64(h, e.Index)
	h = binary.BigEndian.AppendUint64(h, e.Term)
	return eventlog.EncodeRecord(h, e.Data)
}

// DecodeTailRecord reverses EncodeTailRecord.
func DecodeTailRecord(b []byte) (replog.Entry, error) {
	dec, err := eventlog.DecodeRecord(b)
	if err != nil {
		return replog.Entry{}, fmt.Errorf("tail record: %w", err)
	}
	if len(dec.Header) != 16 {
		return replog.Entry{}, fmt.Errorf("%w: tail record header is %d bytes", eventlog.ErrCorrupt, len(dec.Header))
	}
	return replog.Entry{
		Index: binary.BigEndian.Uint64(dec.Header[:8]),
		Term:  binary.BigEndian.Uint64(dec.Header[8:]),
		Data:  dec.Payload,
	}, nil
}

type replicationSvc struct {
	follower    replog.Follower
	fingerprint atomic.Uint64
}

func (s *replicationSvc) Fingerprint(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	return wrapperspb.UInt64(s.fingerprint.Load()), nil
}

func (s *replicationSvc) CommitIndex(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	return wrapperspb.UInt64(s.follower.CommitIndex()), nil
}

// Tail sends every committed entry from the requested index on and then
// follows new commits. The stream ends cleanly when the log closes.
func (s *replicationSvc) Tail(req *wrapperspb.UInt64Value, stream grpc.ServerStream) error {
	ctx := stream.Context()
	next := max(req.GetValue(), s.follower.FirstIndex(), 1)
	for {
		entries, err := s.follower.Read(next, tailBatch)
		if err != nil {
			return status.Errorf(codes.Internal, "read from %d: %v", next, err)
		}
		for _, e := range entries {
			if err := stream.SendMsg(wrapperspb.Bytes(EncodeTailRecord(e))); err != nil {
				return err
			}
			next = e.Index + 1
		}
		if len(entries) > 0 {
			continue
		}
		if _, err := s.follower.WaitForCommit(ctx, next-1); err != nil {
			switch {
			case errors.Is(err, replog.ErrClosed):
				return nil
			case ctx.Err() != nil:
				return status.FromContextError(ctx.Err()).Err()
			default:
				return status.Errorf(codes.Unavailable, "wait for commit: %v", err)
			}
		}
	}
}

// Client calls the replication service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) CommitIndex(ctx context.Context) (replog.Index, error) {
	out := new(wrapperspb.UInt64Value)
	if err := c.cc.Invoke(ctx, commitIndexMethod, &emptypb.Empty{}, out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Fingerprint returns the spec digest advertised by the upstream, 0 if none.
func (c *Client) Fingerprint(ctx context.Context) (uint64, error) {
	out := new(wrapperspb.UInt64Value)
	if err := c.cc.Invoke(ctx, fingerprintMethod, &emptypb.Empty{}, out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Tail opens a stream of committed entries starting at from.
func (c *Client) Tail(ctx context.Context, from replog.Index) (*TailStream, error) {
	stream, err := c.cc.NewStream(ctx, &replicationServiceDesc.Streams[0], tailMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.UInt64(from)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &TailStream{stream: stream}, nil
}

// TailStream yields entries in index order. Recv returns io.EOF when the
// server's log has closed.
type TailStream struct {
	stream grpc.ClientStream
}

func (t *TailStream) Recv() (replog.Entry, error) {
	m := new(wrapperspb.BytesValue)
	if err := t.stream.RecvMsg(m); err != nil {
		return replog.Entry{}, err
	}
	return DecodeTailRecord(m.GetValue())
}
