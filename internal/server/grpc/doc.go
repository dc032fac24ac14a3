// Package grpcserver serves the committed log to read replicas over gRPC.
//
// The replication service is described by a hand-written ServiceDesc using
// protobuf well-known wrapper types, so no generated code is needed:
//
//	service Replication {
//	  rpc CommitIndex(google.protobuf.Empty) returns (google.protobuf.UInt64Value);
//	  rpc Tail(google.protobuf.UInt64Value) returns (stream google.protobuf.BytesValue);
//	}
//
// Example:
//
//	s := grpcserver.New(local.Reader(), logger)
//	s.SetServing(true)
//	_ = s.ListenAndServe(ctx, ":7070")
package grpcserver
