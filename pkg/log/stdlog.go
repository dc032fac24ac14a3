package log

import (
	"bytes"
	"io"
	stdlog "log"
	"strings"
)

// Writer adapts a Logger to io.Writer, emitting one entry per line at level.
// Leading "[LEVEL]" markers (as written by hashicorp libraries) override level.
type Writer struct {
	logger Logger
	level  Level
}

func ToWriter(l Logger, level Level) io.Writer { return &Writer{logger: l, level: level} }

func (w *Writer) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		msg := strings.TrimSpace(string(line))
		if msg == "" {
			continue
		}
		level := w.level
		msg, level = stripLevelMarker(msg, level)
		switch level {
		case DebugLevel:
			w.logger.Debug(msg)
		case WarnLevel:
			w.logger.Warn(msg)
		case ErrorLevel, FatalLevel:
			w.logger.Error(msg)
		default:
			w.logger.Info(msg)
		}
	}
	return len(p), nil
}

func stripLevelMarker(msg string, def Level) (string, Level) {
	markers := []struct {
		tag   string
		level Level
	}{
		{"[TRACE]", DebugLevel},
		{"[DEBUG]", DebugLevel},
		{"[INFO]", InfoLevel},
		{"[WARN]", WarnLevel},
		{"[ERROR]", ErrorLevel},
	}
	for _, m := range markers {
		if i := strings.Index(msg, m.tag); i >= 0 {
			return strings.TrimSpace(msg[i+len(m.tag):]), m.level
		}
	}
	return msg, def
}

// ToStdLogger returns a *log.Logger that writes through l.
func ToStdLogger(l Logger, level Level) *stdlog.Logger {
	return stdlog.New(ToWriter(l, level), "", 0)
}

// RedirectStdLog routes the standard library's default logger through l.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(ToWriter(l, InfoLevel))
}
