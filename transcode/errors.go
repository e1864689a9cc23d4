package transcode

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	// KindService: the service answered with a non-404 error status. The
	// pending record is kept; the caller decides whether to retry.
	KindService Kind = "TranscodeService"
	// KindTransport: the request never got an HTTP answer. Handled like KindService.
	KindTransport Kind = "TranscodeTransport"
	// KindDuplicateMerge: Complete without a recorded merge, or a second merge of
	// the same result. A programmer error, not a runtime condition.
	KindDuplicateMerge Kind = "DuplicateMerge"
)

var (
	// ErrNotMaterialized is returned by Service.Poll while the job is unknown
	// to the service (HTTP 404). It is not a failure.
	ErrNotMaterialized = errors.New("transcode: job not materialized yet")
	// ErrNoPendingJob means no pending record exists for the key.
	ErrNoPendingJob = errors.New("transcode: no pending job")
)

// Error is the package's structured error type.
type Error struct {
	Kind       Kind
	Key        string
	TaskID     string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "transcode: " + e.Message
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

func IsService(err error) bool        { return IsKind(err, KindService) }
func IsTransport(err error) bool      { return IsKind(err, KindTransport) }
func IsDuplicateMerge(err error) bool { return IsKind(err, KindDuplicateMerge) }

// Retryable reports whether polling may be retried after err.
func Retryable(err error) bool {
	return IsService(err) || IsTransport(err)
}

func duplicateMerge(key, msg string) error {
	return &Error{Kind: KindDuplicateMerge, Key: key, Message: msg}
}
