// Package errorkinds defines the failure taxonomy surfaced by the resolver
// and the session controller.
package errorkinds

import (
	"context"
	"errors"
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Kind classifies an Error.
type Kind string

const (
	KindInvalidIdentifier Kind = "invalid_identifier"
	KindDeviceNotFound    Kind = "device_not_found"
	KindConnectionFailed  Kind = "connection_failed"
	KindMissingData       Kind = "missing_data"
	KindOperationFailed   Kind = "operation_failed"
	KindTimeout           Kind = "timeout"
	KindInvalidState      Kind = "invalid_state"
	KindInvalidArgument   Kind = "invalid_argument"
)

// Tags for kinds that have no counterpart in ftag.
const (
	TagTimeout          ftag.Kind = "TIMEOUT"
	TagConnectionFailed ftag.Kind = "CONNECTION_FAILED"
	TagInvalidState     ftag.Kind = "INVALID_STATE"
)

var kindTags = map[Kind]ftag.Kind{
	KindInvalidIdentifier: ftag.InvalidArgument,
	KindDeviceNotFound:    ftag.NotFound,
	KindConnectionFailed:  TagConnectionFailed,
	KindMissingData:       ftag.Internal,
	KindOperationFailed:   ftag.Internal,
	KindTimeout:           TagTimeout,
	KindInvalidState:      TagInvalidState,
	KindInvalidArgument:   ftag.InvalidArgument,
}

// Sentinels usable with errors.Is.
var (
	ErrInvalidIdentifier = &Error{Kind: KindInvalidIdentifier}
	ErrDeviceNotFound    = &Error{Kind: KindDeviceNotFound}
	ErrConnectionFailed  = &Error{Kind: KindConnectionFailed}
	ErrMissingData       = &Error{Kind: KindMissingData}
	ErrOperationFailed   = &Error{Kind: KindOperationFailed}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
)

// Error is a classified failure. Status carries the raw radio stack code
// when one was involved, and is zero otherwise.
type Error struct {
	Kind   Kind
	Detail string
	Status int
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidIdentifier:
		return "Invalid device identifier: " + e.Detail
	case KindDeviceNotFound:
		return "Device not found: " + e.Detail
	case KindConnectionFailed:
		return "Connection failed: " + e.Detail
	case KindMissingData:
		return "Missing data: " + e.Detail
	case KindOperationFailed:
		return "Operation failed: " + e.Detail
	case KindTimeout:
		return "Operation timed out: " + e.Detail
	case KindInvalidState:
		return "Invalid state: " + e.Detail
	case KindInvalidArgument:
		return "Invalid argument: " + e.Detail
	}
	return string(e.Kind) + ": " + e.Detail
}

// Is matches any *Error of the same kind, so the package sentinels work
// with errors.Is regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(ctx context.Context, where string, e *Error) error {
	return fault.Wrap(e,
		fctx.With(ctx, "error_at", where, "kind", string(e.Kind)),
		ftag.With(kindTags[e.Kind]),
		fmsg.WithDesc(string(e.Kind), e.Error()),
	)
}

// InvalidIdentifier reports an identifier that is neither a valid address nor
// the name of a paired device.
func InvalidIdentifier(ctx context.Context, identifier string) error {
	return newError(ctx, "resolve", &Error{Kind: KindInvalidIdentifier, Detail: identifier})
}

// DeviceNotFound reports a well-formed address the radio stack could not
// resolve to a device.
func DeviceNotFound(ctx context.Context, identifier string) error {
	return newError(ctx, "resolve", &Error{Kind: KindDeviceNotFound, Detail: identifier})
}

// ConnectionFailed embeds the radio stack's return code.
func ConnectionFailed(ctx context.Context, status int) error {
	return newError(ctx, "connect", &Error{
		Kind:   KindConnectionFailed,
		Detail: fmt.Sprintf("Return code: %d", status),
		Status: status,
	})
}

// OperationFailed reports a failed operation. A non-zero status is kept for
// diagnostics.
func OperationFailed(ctx context.Context, where, reason string, status int) error {
	return newError(ctx, where, &Error{Kind: KindOperationFailed, Detail: reason, Status: status})
}

// MissingData reports required data the radio stack did not provide.
func MissingData(ctx context.Context, where, what string) error {
	return newError(ctx, where, &Error{Kind: KindMissingData, Detail: what})
}

// Timeout reports an expired deadline on a blocking wait.
func Timeout(ctx context.Context, where, what string) error {
	return newError(ctx, where, &Error{Kind: KindTimeout, Detail: what})
}

func InvalidState(ctx context.Context, where, what string) error {
	return newError(ctx, where, &Error{Kind: KindInvalidState, Detail: what})
}

func InvalidArgument(ctx context.Context, where, what string) error {
	return newError(ctx, where, &Error{Kind: KindInvalidArgument, Detail: what})
}

// Cancelled wraps a context cancellation observed while waiting.
func Cancelled(ctx context.Context, where string, err error) error {
	return fault.Wrap(err,
		fctx.With(ctx, "error_at", where),
		ftag.With(ftag.Cancelled),
		fmsg.WithDesc("cancelled", "Operation cancelled"),
	)
}

// KindOf returns the kind of the first *Error in err's chain, or the empty
// kind when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the radio stack code recorded in err, if any.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Message returns the text shown to users for err.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}

	if issue := fmsg.GetIssue(err); issue != "" {
		return issue
	}

	return err.Error()
}

// Metadata returns the key/value context attached to err.
func Metadata(err error) map[string]string {
	return fctx.Unwrap(err)
}
