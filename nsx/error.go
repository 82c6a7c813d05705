package nsx

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an aberrant condition reported by the NSX manager API.
type Error struct {
	Code int    // the HTTP status code received
	Body []byte // the body of the error returned
}

func (e Error) Error() string {
	return fmt.Sprintf("nsx: http status %d: %s: body: %s", e.Code, e.Message(), string(e.Body))
}

// Message interprets the status code from the manager.
func (e Error) Message() string {
	switch e.Code {
	case http.StatusNotFound:
		return "the requested resource does not exist on the manager"
	case http.StatusConflict:
		return "the manager rejected the request due to a conflicting resource"
	case http.StatusServiceUnavailable:
		return "the manager service cluster is unavailable"
	case http.StatusInternalServerError:
		return "error occurred during the manager's request processing"
	default:
		return "undocumented error"
	}
}

// Temporary reports whether the request may succeed if retried. Managers
// return 503 while a cluster node is re-electing.
func (e Error) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable || e.Code == http.StatusTooManyRequests
}

// NotFound reports whether the error denotes a missing backend resource.
func (e Error) NotFound() bool {
	return e.Code == http.StatusNotFound
}

// IsNotFound reports whether err (or anything it wraps) is a backend
// not-found. Saga compensation paths tolerate these.
func IsNotFound(err error) bool {
	var e Error
	return errors.As(err, &e) && e.NotFound()
}
