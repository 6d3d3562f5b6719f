package catalogapi

import (
	"context"
	"fmt"
	"net"

	"github.com/go-faster/errors"
)

// Kind classifies a failed remote call.
type Kind int

const (
	// KindUnreachable covers DNS, connect and other transport failures.
	KindUnreachable Kind = iota + 1
	// KindTimeout means the call exceeded the client deadline.
	KindTimeout
	// KindRejected is a non-2xx response other than 404.
	KindRejected
	// KindMalformed means the payload did not have the expected shape.
	KindMalformed
	// KindNotFound is a 404 response.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindTimeout:
		return "timeout"
	case KindRejected:
		return "rejected"
	case KindMalformed:
		return "malformed"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the failure result of a remote call.
type Error struct {
	Op     string
	Kind   Kind
	Status int    // HTTP status for KindRejected and KindNotFound.
	Body   string // Truncated response body for KindRejected.
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("%s: %s: status %d: %s", e.Op, e.Kind, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s: status %d", e.Op, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a remote failure. The second result is false
// when err does not come from this client.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// transportError classifies an error returned by http.Client.Do or while
// reading a response body.
func transportError(op string, err error) *Error {
	kind := KindUnreachable
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

func malformed(op string, err error) *Error {
	return &Error{Op: op, Kind: KindMalformed, Err: err}
}
