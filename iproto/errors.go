package iproto

import "errors"

// ParseError represents a client-side frame parsing failure.
// It indicates either a protocol violation by the server or a bug in
// the parser: the stream position is no longer trustworthy.
//
// Connection handling: CLOSE the connection, state is uncertain.
type ParseError struct {
	Message string
	Err     error // underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "iproto: " + e.Message + ": " + e.Err.Error()
	}
	return "iproto: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - parse errors corrupt stream state.
func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is an interface for errors that indicate
// whether the connection should be closed.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether an error returned by ReadResponse
// or ReadRequest requires closing the connection.
//
// A well-formed reply with a non-zero server code is NOT an error at this
// level: it is returned as a *Response and the connection stays healthy.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	// Unknown error type (I/O, EOF) - be conservative and close.
	return true
}
