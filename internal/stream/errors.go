package stream

import "errors"

// ErrUnterminated is reported when the stream ends before a [DONE] or
// [ERROR] sentinel arrives.
var ErrUnterminated = errors.New("stream ended before a terminal sentinel")

// TransportError is a connection that could not be established, or one that
// dropped before the stream was terminated.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is an [ERROR] sentinel received from the service.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "service error: " + e.Message
}
