package transport

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout      = errors.New("request timed out")
	ErrDisconnected = errors.New("connection to app lost")
	ErrStopped      = errors.New("connection stopped")
	ErrNotConnected = errors.New("not connected to app")
	ErrNoIDs        = errors.New("window ids required when not restricted to observed windows")
)

// ResponseError reports a response whose status was not OK.
type ResponseError struct {
	Type   string
	ID     int64
	Status string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s #%d: app responded with status %q", e.Type, e.ID, e.Status)
}

// MalformedError reports a frame that was read whole but could not be
// decoded. The connection stays usable.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err came from the exchange with the app.
func IsProtocolError(err error) bool {
	var re *ResponseError
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrDisconnected) ||
		errors.Is(err, ErrStopped) ||
		errors.Is(err, ErrNotConnected) ||
		errors.As(err, &re)
}
