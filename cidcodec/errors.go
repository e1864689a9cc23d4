package cidcodec

import (
	"errors"
	"fmt"

	"xdao.co/mediacid/ciduri"
)

// Kind is a stable category for programmatic error handling.
//
// Branch on Kind rather than matching error strings.
type Kind string

const (
	// KindMalformed: the input does not decode to a payload long enough for the
	// fixed offsets, or its trailer is inconsistent. Never retryable.
	KindMalformed Kind = "MalformedCID"
	// KindKeyMismatch: a key has the wrong shape, or content sealed under a
	// different key failed its integrity check. Retrying with the same key cannot succeed.
	KindKeyMismatch Kind = "KeyMismatch"
)

// Error is the codec's structured error type.
type Error struct {
	Kind Kind
	// Input is the offending identifier cut before the key region, so errors
	// can be logged or returned to clients without leaking a key.
	Input   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Input == "" {
		return fmt.Sprintf("cidcodec: %s", e.Message)
	}
	return fmt.Sprintf("cidcodec: %s: %q", e.Message, e.Input)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func malformed(input, msg string) error {
	return &Error{Kind: KindMalformed, Input: redact(input), Message: msg}
}

func malformedCause(input, msg string, cause error) error {
	return &Error{Kind: KindMalformed, Input: redact(input), Message: msg, Cause: cause}
}

// headerChars is the number of base64url characters covering the header; the
// key region starts right after them.
const headerChars = HeaderSize * 4 / 3

// redact keeps the scheme, the multibase prefix and the header characters of
// input. Anything longer is elided.
func redact(input string) string {
	parts := ciduri.Split(input)
	if len(parts.Body) <= 1+headerChars {
		return input
	}
	return parts.Scheme + parts.Body[:1+headerChars] + "..."
}

// KeyMismatch builds a KindKeyMismatch error. Other packages use it when
// content sealed under a key fails to open.
func KeyMismatch(msg string, cause error) error {
	return &Error{Kind: KindKeyMismatch, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

func IsMalformed(err error) bool   { return IsKind(err, KindMalformed) }
func IsKeyMismatch(err error) bool { return IsKind(err, KindKeyMismatch) }
