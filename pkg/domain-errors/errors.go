// Package domainerrors provides coded errors for the aggregation core.
//
// Services and adapters return these so callers can branch on the failure
// kind without string matching. Infrastructure facts (missing rows, expired
// entries) stay sentinel errors in pkg/platform/sentinel; the boundary that
// observes a sentinel wraps it into a coded error before it crosses into
// domain logic.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure. The set is closed; adapters map provider-native
// failures onto it and nothing downstream invents new kinds.
type Code string

const (
	// CodeInvalidInput marks a malformed or empty query from the caller.
	CodeInvalidInput Code = "invalid_input"

	// CodeUnknownIndicator marks an indicator code with no canonical
	// registration or no provider-native mapping. Permanent, caller error.
	CodeUnknownIndicator Code = "unknown_indicator"

	// CodeUnknownCountry marks a country code the provider cannot serve.
	// Permanent, caller error.
	CodeUnknownCountry Code = "unknown_country"

	// CodeRateLimited marks a locally enforced rate-limit rejection.
	CodeRateLimited Code = "rate_limited"

	// CodeTransient marks failures worth retrying: network errors, 5xx
	// responses, provider-side 429s.
	CodeTransient Code = "transient"

	// CodePermanent marks failures retrying cannot fix: 4xx other than 429,
	// malformed queries, unparseable payloads.
	CodePermanent Code = "permanent"

	// CodeTimeout marks a deadline expiry. Partial results may accompany it.
	CodeTimeout Code = "timeout"

	// CodeInsufficientData marks an analytics precondition failure.
	CodeInsufficientData Code = "insufficient_data"

	// CodeUnavailable marks a backing service that cannot be reached.
	CodeUnavailable Code = "unavailable"

	// CodeInternal marks everything else.
	CodeInternal Code = "internal"
)

// Error carries a code alongside a message and an optional cause.
type Error struct {
	code Code
	msg  string
	err  error
}

// New returns a coded error with the given message.
func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

// Newf returns a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil when err is nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: fmt.Sprintf(format, args...), err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the failure classification.
func (e *Error) Code() Code {
	return e.code
}

// Message returns the message without the cause chain, for user-facing output.
func (e *Error) Message() string {
	return e.msg
}

// CodeOf extracts the code from anywhere in err's chain. Uncoded errors map to
// CodeInternal; nil maps to the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsTransient reports whether a retry could plausibly succeed. Local rate
// limiting and backend unavailability count: the next attempt re-acquires the
// limiter after backoff and the backend may have recovered.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeTransient, CodeRateLimited, CodeUnavailable:
		return true
	}
	return false
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	return Is(err, CodeTimeout)
}
