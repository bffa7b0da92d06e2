package transport

import (
	"errors"
	"fmt"
)

// Op identifies the transport operation that failed.
type Op string

const (
	OpListen Op = "listen"
	OpAccept Op = "accept"
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpClose  Op = "close"
)

// ErrEmptyRequest is returned when a read completes with zero bytes and no
// error. A client that closes without sending anything surfaces as
// ErrConnectionClosed instead.
var ErrEmptyRequest = errors.New("client sent no data")

// ErrConnectionClosed is returned when the peer went away mid-operation.
var ErrConnectionClosed = errors.New("connection closed by peer")

// Error wraps a failure of a transport operation.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport %s failed", e.Op)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op Op, err error) *Error {
	return &Error{Op: op, Err: err}
}
