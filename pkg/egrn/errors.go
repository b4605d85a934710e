package egrn

import (
	"errors"
	"fmt"
	"net"
)

// TransportError means the request never produced a response: DNS, TLS,
// connection or timeout failures.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("egrn: request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResponseError is a completed request with a non-2xx status.
type ResponseError struct {
	URL        string
	StatusCode int
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("egrn: %s returned status %d", e.URL, e.StatusCode)
}

// StatusCode returns the HTTP status carried by err, or 0 when the request
// failed before a response arrived.
func StatusCode(err error) int {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
