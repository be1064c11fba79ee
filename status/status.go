// Package status implements the corerpc outcome model: a Status (code +
// message) and the RPCError that carries a non-ok Status across interceptor
// and executor boundaries.
package status

import (
	"fmt"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/metadata"
)

// Status is the outcome of a completed RPC attempt.
type Status struct {
	code    codes.Code
	message string
	md      metadata.MD
	cause   error
}

// New returns a Status with the given code and message.
func New(code codes.Code, message string) *Status {
	return &Status{code: code, message: message}
}

// Newf returns a Status with the given code and a formatted message.
func Newf(code codes.Code, format string, args ...interface{}) *Status {
	return New(code, fmt.Sprintf(format, args...))
}

// Code returns s's code, or codes.OK if s is nil.
func (s *Status) Code() codes.Code {
	if s == nil {
		return codes.OK
	}
	return s.code
}

// Message returns s's message, or "" if s is nil.
func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.message
}

// Metadata returns the metadata attached to s, typically the trailing
// metadata a server sent alongside its final status.
func (s *Status) Metadata() metadata.MD {
	if s == nil {
		return metadata.MD{}
	}
	return s.md
}

// WithMetadata returns a copy of s carrying md.
func (s *Status) WithMetadata(md metadata.MD) *Status {
	return &Status{code: s.code, message: s.message, md: md, cause: s.cause}
}

// WithCause returns a copy of s carrying cause as its underlying error.
func (s *Status) WithCause(cause error) *Status {
	return &Status{code: s.code, message: s.message, md: s.md, cause: cause}
}

// Err returns an RPCError built from s, or nil if s's code is codes.OK —
// an RPCError constructed from a Status is null iff the status is OK
//.
func (s *Status) Err() error {
	if s.Code() == codes.OK {
		return nil
	}
	return &RPCError{status: s}
}

// RPCError is the failure carrier: a status code that is never codes.OK,
// an optional cause, and metadata the caller can inspect for
// server-supplied diagnostics.
type RPCError struct {
	status *Status
}

// Error constructs an RPCError directly from code/message/md, or returns
// nil if code is codes.OK.
func Error(code codes.Code, message string, md metadata.MD) error {
	return New(code, message).WithMetadata(md).Err()
}

// Errorf is like Error but formats message.
func Errorf(code codes.Code, md metadata.MD, format string, args ...interface{}) error {
	return Error(code, fmt.Sprintf(format, args...), md)
}

// Wrap returns an RPCError for code/message/md carrying cause as its
// Unwrap()-visible underlying error, or nil if code is codes.OK.
func Wrap(code codes.Code, message string, md metadata.MD, cause error) error {
	return New(code, message).WithMetadata(md).WithCause(cause).Err()
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("corerpc: code = %s desc = %s", e.status.Code(), e.status.Message())
}

// Unwrap returns e's underlying cause, if any, so callers can use
// errors.As/errors.Is against it.
func (e *RPCError) Unwrap() error {
	if e == nil || e.status == nil {
		return nil
	}
	return e.status.cause
}

// Code returns e's status code.
func (e *RPCError) Code() codes.Code {
	if e == nil {
		return codes.OK
	}
	return e.status.Code()
}

// Message returns e's status message.
func (e *RPCError) Message() string {
	if e == nil {
		return ""
	}
	return e.status.Message()
}

// Metadata returns the trailing/error metadata attached to e.
func (e *RPCError) Metadata() metadata.MD {
	if e == nil {
		return metadata.MD{}
	}
	return e.status.Metadata()
}

// Status returns the *Status underlying e.
func (e *RPCError) Status() *Status {
	if e == nil {
		return New(codes.OK, "")
	}
	return e.status
}

// FromError extracts the *Status from err: codes.OK if err is nil, the
// RPCError's status if err is one, or codes.Unknown with false otherwise.
func FromError(err error) (*Status, bool) {
	if err == nil {
		return New(codes.OK, ""), true
	}
	if rpcErr, ok := err.(*RPCError); ok {
		return rpcErr.status, true
	}
	return New(codes.Unknown, err.Error()), false
}

// Code is a convenience wrapper around FromError that returns just the code.
func Code(err error) codes.Code {
	s, _ := FromError(err)
	return s.Code()
}

// ToRPCError normalizes any error into an RPCError: a nil error maps to
// nil, an existing *RPCError passes through unchanged, and anything else
// becomes codes.Unknown with the original error preserved as cause
//.
func ToRPCError(err error) error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(*RPCError); ok {
		return rpcErr
	}
	return Wrap(codes.Unknown, err.Error(), metadata.MD{}, err)
}

// FromHTTPStatus maps a non-corerpc HTTP response status code to the
// RPCError.code a transport should surface when it rejects a request
// before protocol framing begins.
func FromHTTPStatus(httpStatus int) codes.Code {
	switch httpStatus {
	case 400:
		return codes.Internal
	case 401:
		return codes.Unauthenticated
	case 403:
		return codes.PermissionDenied
	case 404:
		return codes.Unimplemented
	case 429, 502, 503, 504:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}
