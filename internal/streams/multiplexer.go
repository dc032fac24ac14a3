package streams

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/rzbill/logmux/internal/replog"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

// Multiplexer is the write side: it owns one producer handle per declared
// stream and appends their values to the shared log. It lives as long as the
// node holds leadership.
type Multiplexer struct {
	spec    *Spec
	leader  replog.Leader
	logger  logpkg.Logger
	metrics *Metrics

	handles map[StreamID]*ProducerBase
	closed  atomic.Bool
}

// NewMultiplexer binds spec to the append capability of an elected leader.
func NewMultiplexer(spec *Spec, leader replog.Leader, opts ...Option) *Multiplexer {
	o := buildOptions(opts)
	m := &Multiplexer{
		spec:    spec,
		leader:  leader,
		logger:  o.logger.WithComponent("multiplexer"),
		metrics: o.metrics,
		handles: make(map[StreamID]*ProducerBase, len(spec.ordered)),
	}
	for _, d := range spec.ordered {
		m.handles[d.ID] = &ProducerBase{m: m, desc: d, tag: d.CanonicalTag()}
	}
	return m
}

func (m *Multiplexer) Spec() *Spec { return m.spec }

// Stream returns the handle of a declared stream.
func (m *Multiplexer) Stream(id StreamID) (*ProducerBase, error) {
	p, ok := m.handles[id]
	if !ok {
		return nil, &MisuseError{Op: "stream", Reason: fmt.Sprintf("stream %d is not declared", id)}
	}
	return p, nil
}

// Close invalidates every handle. Inserts already handed to the log are
// unaffected.
func (m *Multiplexer) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.logger.Debug("multiplexer closed")
	}
	return nil
}

// ProducerBase is the type-erased write handle of one stream.
type ProducerBase struct {
	m    *Multiplexer
	desc *StreamDescriptor
	tag  TagDescriptor
}

func (p *ProducerBase) ID() StreamID { return p.desc.ID }

func (p *ProducerBase) Name() string { return p.desc.Name }

// Insert encodes v, which must be of the stream's value type, and appends it.
func (p *ProducerBase) Insert(ctx context.Context, v any) (LogIndex, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	payload, err := p.tag.Encode(v)
	if err != nil {
		var me *MisuseError
		if errors.As(err, &me) {
			return 0, err
		}
		return 0, fmt.Errorf("streams: encode stream %d: %w", p.desc.ID, err)
	}
	return p.append(ctx, payload)
}

func (p *ProducerBase) checkOpen() error {
	if p.m.closed.Load() {
		return &MisuseError{Op: "insert", Reason: "multiplexer is closed"}
	}
	return nil
}

func (p *ProducerBase) append(ctx context.Context, payload []byte) (LogIndex, error) {
	env := EncodeEnvelope(Envelope{Stream: p.desc.ID, Tag: p.tag.Tag, Payload: payload})
	idx, err := p.m.leader.Append(ctx, env)
	p.m.metrics.observeInsert(p.desc.ID, len(env), err)
	if err != nil {
		if errors.Is(err, replog.ErrNotLeader) {
			return 0, &NotLeaderError{Stream: p.desc.ID, Cause: err}
		}
		return 0, fmt.Errorf("streams: append stream %d: %w", p.desc.ID, err)
	}
	return idx, nil
}

// Producer is the typed write handle of one stream.
type Producer[T any] struct {
	base  *ProducerBase
	codec Codec[T]
}

// ProducerFor returns the typed handle of stream id. T must be the value
// type the stream was declared with.
func ProducerFor[T any](m *Multiplexer, id StreamID) (*Producer[T], error) {
	base, err := m.Stream(id)
	if err != nil {
		return nil, err
	}
	if err := checkType[T](base.desc); err != nil {
		return nil, err
	}
	return &Producer[T]{base: base, codec: base.tag.codec.(Codec[T])}, nil
}

func (p *Producer[T]) ID() StreamID { return p.base.ID() }

// Insert appends v and returns its global log index.
func (p *Producer[T]) Insert(ctx context.Context, v T) (LogIndex, error) {
	if err := p.base.checkOpen(); err != nil {
		return 0, err
	}
	payload, err := p.codec.Encode(v)
	if err != nil {
		return 0, fmt.Errorf("streams: encode stream %d: %w", p.base.desc.ID, err)
	}
	return p.base.append(ctx, payload)
}

func checkType[T any](d *StreamDescriptor) error {
	if want := reflect.TypeFor[T](); want != d.ValueType {
		return &MisuseError{Op: "handle", Reason: fmt.Sprintf("stream %d carries %s, not %s", d.ID, d.ValueType, want)}
	}
	return nil
}
