package mirror

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rzbill/logmux/internal/eventlog"
	"github.com/rzbill/logmux/internal/replog"
	grpcserver "github.com/rzbill/logmux/internal/server/grpc"
	pebblestore "github.com/rzbill/logmux/internal/storage/pebble"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func openLog(t *testing.T, name string) *eventlog.Log {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	l, err := eventlog.OpenLog(db, name)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l
}

func serve(t *testing.T, f replog.Follower) *grpcserver.Client {
	t.Helper()
	return serveFingerprint(t, f, 0)
}

func serveFingerprint(t *testing.T, f replog.Follower, fp uint64) *grpcserver.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpcserver.New(f, nil)
	srv.SetFingerprint(fp)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx, lis) }()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		srv.Close()
	})
	return grpcserver.NewClient(conn)
}

func TestMirrorCopiesAndFollows(t *testing.T) {
	local, err := replog.NewLocal(openLog(t, "upstream"))
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, p := range []string{"a", "b"} {
		if _, err := local.Append(ctx, []byte(p)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	m := New(openLog(t, "mirror"), serve(t, local.Reader()), WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(ctx) }()

	if _, err := m.WaitForCommit(ctx, 1); err != nil {
		t.Fatalf("wait for initial copy: %v", err)
	}
	if _, err := local.Append(ctx, []byte("c")); err != nil {
		t.Fatalf("append: %v", err)
	}
	for m.CommitIndex() < 3 {
		if _, err := m.WaitForCommit(ctx, m.CommitIndex()); err != nil {
			t.Fatalf("follow: %v", err)
		}
	}
	entries, err := m.Read(1, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 3 || string(entries[2].Data) != "c" || entries[2].Term != 1 {
		t.Fatalf("mirrored entries: %+v", entries)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after close")
	}
	if _, err := m.WaitForCommit(ctx, 3); !errors.Is(err, replog.ErrClosed) {
		t.Fatalf("want ErrClosed after close, got %v", err)
	}
}

func TestMirrorStartsAtUpstreamRetainedPrefix(t *testing.T) {
	local, err := replog.NewLocal(openLog(t, "upstream"))
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 4; i++ {
		if _, err := local.Append(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := local.Reader().Release(ctx, 2); err != nil {
		t.Fatalf("release: %v", err)
	}

	m := New(openLog(t, "mirror"), serve(t, local.Reader()))
	go func() { _ = m.Run(ctx) }()
	t.Cleanup(func() { _ = m.Close() })
	for m.CommitIndex() < 4 {
		if _, err := m.WaitForCommit(ctx, m.CommitIndex()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if m.FirstIndex() != 3 {
		t.Fatalf("mirror first index: got %d want 3", m.FirstIndex())
	}
}

func TestMirrorComparesFingerprint(t *testing.T) {
	local, err := replog.NewLocal(openLog(t, "upstream"))
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := local.Append(ctx, []byte("a")); err != nil {
		t.Fatalf("append: %v", err)
	}

	foreign := New(openLog(t, "foreign"), serveFingerprint(t, local.Reader(), 0xa),
		WithFingerprint(0xb), WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	t.Cleanup(func() { _ = foreign.Close() })
	if err := foreign.Run(ctx); !errors.Is(err, ErrSpecMismatch) {
		t.Fatalf("want ErrSpecMismatch, got %v", err)
	}
	if foreign.CommitIndex() != 0 {
		t.Fatalf("mismatched mirror copied up to %d", foreign.CommitIndex())
	}

	same := New(openLog(t, "same"), serveFingerprint(t, local.Reader(), 0xa), WithFingerprint(0xa))
	go func() { _ = same.Run(ctx) }()
	t.Cleanup(func() { _ = same.Close() })
	if _, err := same.WaitForCommit(ctx, 0); err != nil {
		t.Fatalf("matching mirror: %v", err)
	}
}
