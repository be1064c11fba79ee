package corerpc

import (
	"context"

	"github.com/corerpc/corerpc/codes"
)

// codeFromContextErr maps a context.Context error to the status code
// assigns it: context.Canceled is cancellation, anything else
// (practically only context.DeadlineExceeded) is a deadline expiry.
func codeFromContextErr(err error) codes.Code {
	if err == context.Canceled {
		return codes.Canceled
	}
	return codes.DeadlineExceeded
}

// unavailableOrUnknown classifies a raw transport error of the
// "transport failed to open a stream" kind: context errors keep their
// specific code, everything else is Unavailable (the transport itself
// could not be reached).
func unavailableOrUnknown(err error) codes.Code {
	switch err {
	case context.Canceled, context.DeadlineExceeded:
		return codeFromContextErr(err)
	default:
		return codes.Unavailable
	}
}
