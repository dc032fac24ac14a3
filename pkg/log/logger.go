package log

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

type Fields map[string]interface{}

// Well-known field keys.
const (
	RequestIDKey = "request_id"
	ComponentKey = "component"
	OperationKey = "operation"
)

// Entry is what a Formatter renders.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
	Error     error
}

// Logger is the logging surface every logmux package depends on.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// The f variants take alternating key/value pairs, not a format string.
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
	Fatalf(msg string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	With(fields ...Field) Logger
	// WithContext attaches the fields stored by ContextWith.
	WithContext(ctx context.Context) Logger
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

type LoggerOption func(*BaseLogger)

// BaseLogger is the Logger implementation. Loggers derived through With*
// share outputs, the level and the write lock with their parent.
type BaseLogger struct {
	mu         *sync.Mutex
	level      *atomicLevel
	fields     Fields
	formatter  Formatter
	outputs    []Output
	slogLogger *slog.Logger
}

type ctxFieldsKey struct{}

// ContextWith returns a copy of ctx carrying key=value for WithContext.
func ContextWith(ctx context.Context, key string, value interface{}) context.Context {
	prev, _ := ctx.Value(ctxFieldsKey{}).(Fields)
	next := make(Fields, len(prev)+1)
	for k, v := range prev {
		next[k] = v
	}
	next[key] = value
	return context.WithValue(ctx, ctxFieldsKey{}, next)
}

// ContextWithRequestID is ContextWith(ctx, RequestIDKey, id).
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return ContextWith(ctx, RequestIDKey, id)
}

// ContextExtractor returns the fields stored in ctx by ContextWith.
func ContextExtractor(ctx context.Context) Fields {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(ctxFieldsKey{}).(Fields)
	return f
}

// NewLogger defaults to JSON on stderr at info level.
func NewLogger(options ...LoggerOption) Logger {
	l := &BaseLogger{
		mu:        &sync.Mutex{},
		level:     newAtomicLevel(InfoLevel),
		fields:    Fields{},
		formatter: &JSONFormatter{},
	}
	for _, option := range options {
		option(l)
	}
	if len(l.outputs) == 0 {
		l.outputs = []Output{NewConsoleOutput()}
	}
	l.slogLogger = slog.New(newBridgeHandler(l))
	return l
}

func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { l.level.Store(level) }
}

func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) { l.formatter = formatter }
}

// WithOutput adds an output; repeat it to fan out.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) { l.outputs = append(l.outputs, output) }
}

type atomicLevel struct{ v atomic.Int32 }

func newAtomicLevel(l Level) *atomicLevel {
	a := &atomicLevel{}
	a.Store(l)
	return a
}

func (a *atomicLevel) Load() Level   { return Level(a.v.Load()) }
func (a *atomicLevel) Store(l Level) { a.v.Store(int32(l)) }
