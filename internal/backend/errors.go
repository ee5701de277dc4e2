package backend

import (
	"errors"
	"fmt"
)

// NetworkError reports a transport failure: the request never produced a
// response from the backend.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: backend not reachable: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BackendError reports a response with success:false or a non-2xx status.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return e.Message
}

// Message returns the text to show the operator: the backend's own message
// when one was given, otherwise fallback.
func Message(err error, fallback string) string {
	var be *BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return fallback
}
