package apperr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a domain error carrying a canonical status code. It satisfies the
// interface grpc's status package looks for, so status.FromError and
// status.Code recognise it even when wrapped with fmt.Errorf("...: %w").
type Error struct {
	code       codes.Code
	msg        string
	retryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) GRPCStatus() *status.Status { return status.New(e.code, e.Error()) }

func (e *Error) Code() codes.Code { return e.code }

// RetryAfter is the hint given to callers of held or throttled operations.
func (e *Error) RetryAfter() time.Duration { return e.retryAfter }

func New(code codes.Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error.
func Wrap(code codes.Code, err error, msg string) error {
	return &Error{code: code, msg: msg, cause: err}
}

// Retryable builds an error that tells the caller when to try again.
func Retryable(code codes.Code, retryAfter time.Duration, format string, args ...any) error {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Error{code: code, msg: fmt.Sprintf(format, args...), retryAfter: retryAfter}
}

func InvalidArgument(format string, args ...any) error {
	return New(codes.InvalidArgument, format, args...)
}

func NotFound(format string, args ...any) error {
	return New(codes.NotFound, format, args...)
}

func PermissionDenied(format string, args ...any) error {
	return New(codes.PermissionDenied, format, args...)
}

func Unauthenticated(format string, args ...any) error {
	return New(codes.Unauthenticated, format, args...)
}

func FailedPrecondition(format string, args ...any) error {
	return New(codes.FailedPrecondition, format, args...)
}

func Internal(format string, args ...any) error {
	return New(codes.Internal, format, args...)
}

// Code returns the canonical code of err. Unclassified errors map to Unknown.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Unknown
}

// Is reports whether err carries the given code.
func Is(err error, code codes.Code) bool {
	return Code(err) == code
}

type retryHinter interface {
	RetryAfter() time.Duration
}

type grpcStatuser interface {
	GRPCStatus() *status.Status
}

// RetryAfter extracts the retry hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var h retryHinter
	if errors.As(err, &h) && h.RetryAfter() > 0 {
		return h.RetryAfter(), true
	}
	return 0, false
}

// Message returns the caller-safe message of err without wrapped causes.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.msg
	}
	var gs grpcStatuser
	if errors.As(err, &gs) {
		return gs.GRPCStatus().Message()
	}
	return "internal error"
}
