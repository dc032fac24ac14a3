package streams

import (
	"errors"
	"fmt"
)

var (
	// ErrMisuse marks programming errors: a second Listen, an undeclared
	// stream, a handle of the wrong type, or use after Close.
	ErrMisuse = errors.New("streams: misuse")
	// ErrSpecMismatch marks log entries this Spec cannot decode.
	ErrSpecMismatch = errors.New("streams: spec mismatch")
	// ErrNotLeader marks inserts rejected because leadership was lost.
	ErrNotLeader = errors.New("streams: not leader")
	// ErrAborted marks waits torn down before they resolved.
	ErrAborted = errors.New("streams: wait aborted")
	// ErrLogGap marks a follower that delivered a non-contiguous index.
	ErrLogGap            = errors.New("streams: log gap")
	ErrMalformedEnvelope = errors.New("streams: malformed envelope")
	ErrInvalidSpec       = errors.New("streams: invalid spec")
	// ErrPending is returned by Future.Result before resolution.
	ErrPending = errors.New("streams: future pending")
)

// SpecMismatchError reports the entry that halted a Demultiplexer.
type SpecMismatchError struct {
	Index  LogIndex
	Stream StreamID
	Tag    StreamTag
	Cause  error
}

func (e *SpecMismatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("streams: cannot decode entry %d (stream %d, tag %d): %v", e.Index, e.Stream, e.Tag, e.Cause)
	}
	return fmt.Sprintf("streams: entry %d addresses unknown stream %d tag %d", e.Index, e.Stream, e.Tag)
}

func (e *SpecMismatchError) Unwrap() []error { return joinCause(ErrSpecMismatch, e.Cause) }

// NotLeaderError is returned by Insert when the log refused the append.
type NotLeaderError struct {
	Stream StreamID
	Cause  error
}

func (e *NotLeaderError) Error() string {
	return fmt.Sprintf("streams: insert into stream %d rejected: %v", e.Stream, e.Cause)
}

func (e *NotLeaderError) Unwrap() []error { return joinCause(ErrNotLeader, e.Cause) }

// AbortedWaitError resolves waits whose stream or Demultiplexer went away.
// Cause is the fatal error, if the teardown was caused by one.
type AbortedWaitError struct {
	Cause error
}

func (e *AbortedWaitError) Error() string {
	if e.Cause != nil {
		return "streams: wait aborted: " + e.Cause.Error()
	}
	return "streams: wait aborted"
}

func (e *AbortedWaitError) Unwrap() []error { return joinCause(ErrAborted, e.Cause) }

// MisuseError describes an API call that can never succeed.
type MisuseError struct {
	Op     string
	Reason string
}

func (e *MisuseError) Error() string { return "streams: " + e.Op + ": " + e.Reason }

func (e *MisuseError) Unwrap() error { return ErrMisuse }

func joinCause(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}
