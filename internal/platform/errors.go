package platform

import (
	"errors"
	"fmt"
)

// ErrEmptyToken is returned when a login response carries no access token.
var ErrEmptyToken = errors.New("platform: empty access token in response")

// TransportError is a network, timeout or decoding failure. The acquisition
// loop always retries these on the next tick.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("platform: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// BookingRejectedError is a non-2xx answer to a booking or cancellation. It
// is transient from the loop's point of view.
type BookingRejectedError struct {
	StatusCode int
	Body       string
}

func (e *BookingRejectedError) Error() string {
	return fmt.Sprintf("platform: booking rejected with status %d: %s", e.StatusCode, e.Body)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejected reports whether err is or wraps a BookingRejectedError.
func IsRejected(err error) bool {
	var re *BookingRejectedError
	return errors.As(err, &re)
}

func truncate(b []byte) string {
	msg := string(b)
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
