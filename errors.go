package tarantool

import (
	"errors"
	"fmt"

	"github.com/pior/tarantool/iproto"
)

var (
	// ErrConnectionClosed is returned for requests issued after Close.
	ErrConnectionClosed = errors.New("tarantool: connection closed")

	// ErrTooManyPending is returned when the pending-request table is
	// at MaxPendingRequests. The connection itself stays healthy.
	ErrTooManyPending = errors.New("tarantool: too many pending requests")
)

// ErrorKind classifies transport-level failures. These are fatal to the
// in-flight request but not to the caller's program.
type ErrorKind uint8

const (
	// KindConnectFailed: DNS, refused, or timeout during connect.
	KindConnectFailed ErrorKind = iota + 1

	// KindAuthFailed: credentials rejected by the server. Terminal
	// during the initial Connect; after a mid-session loss the
	// background reconnector keeps retrying with the same credentials.
	KindAuthFailed

	// KindConnectionLost: socket closed or I/O error mid-session.
	KindConnectionLost

	// KindRequestTimeout: no response within the request deadline.
	KindRequestTimeout

	// KindProtocolError: malformed frame. Fatal to the connection.
	KindProtocolError
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectFailed:
		return "connect failed"
	case KindAuthFailed:
		return "authentication failed"
	case KindConnectionLost:
		return "connection lost"
	case KindRequestTimeout:
		return "request timeout"
	case KindProtocolError:
		return "protocol error"
	}
	return "unknown"
}

// ClientError is a transport-level failure delivered to pending callers.
type ClientError struct {
	Kind ErrorKind
	Msg  string
	Err  error // underlying error, if any
}

func (e *ClientError) Error() string {
	s := "tarantool: " + e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error is a per-request deadline expiry.
func (e *ClientError) Timeout() bool {
	return e.Kind == KindRequestTimeout
}

// ServerError is a well-formed reply with a non-zero code. The
// connection remains healthy; the failure concerns this request only.
type ServerError struct {
	// Code is the server error class.
	Code uint32

	// Message is the server-provided error string.
	Message string
}

// Name returns the symbolic name of the error class, e.g.
// "ER_TUPLE_FOUND". Unknown classes degrade to "ER_UNKNOWN_<code>".
func (e *ServerError) Name() string {
	return iproto.ErrorName(e.Code)
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("tarantool: %s (0x%x): %s", e.Name(), e.Code, e.Message)
}

// IsStaleSchema reports whether the server rejected the request because
// it was planned against an obsolete schema version.
func (e *ServerError) IsStaleSchema() bool {
	return e.Code == iproto.ErrWrongSchemaVersion
}

func newServerError(resp *iproto.Response) *ServerError {
	return &ServerError{Code: resp.Code, Message: resp.Message}
}
