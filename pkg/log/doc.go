// Package log is the structured logging facade used by every logmux package.
//
// Logger exposes leveled methods that take typed Fields. Records are routed
// through log/slog into a pluggable Formatter (text or JSON) and one or more
// Outputs (console, file, arbitrary writer, null).
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.WithComponent("demux")
//	l.Info("applied", log.Uint64("index", 42))
//
// # Configuration
//
// ApplyConfig builds a logger from Config, which the server reads from its
// config file (log.level, log.format). Redact and the sampling knobs are
// applied by the slog bridge.
//
// # Interop
//
// hashicorp/raft and net/http want a *log.Logger or an io.Writer; ToStdLogger
// and ToWriter adapt a Logger, honouring "[WARN]" style level markers.
// RedirectStdLog points the process-wide standard logger at a Logger.
package log
