// Package codes defines the canonical status codes used by corerpc.
//
// These values and their numeric assignment are fixed by the wire protocol
// this module speaks and must never be renumbered.
package codes

// Code is an RPC status code.
type Code uint32

const (
	// OK indicates the RPC completed successfully.
	OK Code = 0
	// Canceled indicates the RPC was canceled, typically by the caller.
	Canceled Code = 1
	// Unknown indicates an error that carries no more specific status code,
	// or an error raised by an API that does not return a corerpc status.
	Unknown Code = 2
	// InvalidArgument indicates the client specified an invalid argument.
	InvalidArgument Code = 3
	// DeadlineExceeded means the deadline expired before the RPC completed.
	DeadlineExceeded Code = 4
	// NotFound means a requested entity was not found.
	NotFound Code = 5
	// AlreadyExists means the entity a caller tried to create already exists.
	AlreadyExists Code = 6
	// PermissionDenied means the caller lacks permission for the operation.
	PermissionDenied Code = 7
	// ResourceExhausted means a resource has been exhausted, e.g. a per-RPC
	// or per-user quota, or the whole file system is out of space.
	ResourceExhausted Code = 8
	// FailedPrecondition means the system is not in a state required for
	// the operation's execution.
	FailedPrecondition Code = 9
	// Aborted means the operation was aborted, typically due to a
	// concurrency issue such as a sequencer check failure.
	Aborted Code = 10
	// OutOfRange means the operation was attempted past the valid range.
	OutOfRange Code = 11
	// Unimplemented means the operation is not implemented or not
	// supported/enabled by this server.
	Unimplemented Code = 12
	// Internal means an internal error occurred; some invariant the
	// underlying system expects to hold does not.
	Internal Code = 13
	// Unavailable means the service is currently unavailable.
	Unavailable Code = 14
	// DataLoss means unrecoverable data loss or corruption occurred.
	DataLoss Code = 15
	// Unauthenticated means the request does not have valid authentication
	// credentials for the operation.
	Unauthenticated Code = 16
)

var codeNames = map[Code]string{
	OK:                 "OK",
	Canceled:           "CANCELLED",
	Unknown:            "UNKNOWN",
	InvalidArgument:    "INVALID_ARGUMENT",
	DeadlineExceeded:   "DEADLINE_EXCEEDED",
	NotFound:           "NOT_FOUND",
	AlreadyExists:      "ALREADY_EXISTS",
	PermissionDenied:   "PERMISSION_DENIED",
	ResourceExhausted:  "RESOURCE_EXHAUSTED",
	FailedPrecondition: "FAILED_PRECONDITION",
	Aborted:            "ABORTED",
	OutOfRange:         "OUT_OF_RANGE",
	Unimplemented:      "UNIMPLEMENTED",
	Internal:           "INTERNAL",
	Unavailable:        "UNAVAILABLE",
	DataLoss:           "DATA_LOSS",
	Unauthenticated:    "UNAUTHENTICATED",
}

var namesToCode = func() map[string]Code {
	m := make(map[string]Code, len(codeNames))
	for c, n := range codeNames {
		m[n] = c
	}
	return m
}()

// String returns the canonical upper-snake-case name of c, or "CODE(n)" if
// c is not one of the 17 defined values.
func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "CODE(" + itoa(uint32(c)) + ")"
}

// ParseName returns the Code whose canonical name equals name, matched
// case-insensitively, and true. It returns (0, false) if name does not
// name a known code.
func ParseName(name string) (Code, bool) {
	c, ok := namesToCode[upper(name)]
	return c, ok
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
