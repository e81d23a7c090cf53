package app

import "fmt"

// UnsupportedBackendError is returned when a configured backend type has
// no implementation.
type UnsupportedBackendError struct {
	Kind string
	Type string
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("unsupported %s backend %q", e.Kind, e.Type)
}

// AlreadyRunningError is returned by Run when the App is already serving.
type AlreadyRunningError struct{}

func (e *AlreadyRunningError) Error() string {
	return "app is already running"
}

// ServerError wraps a listener failure with the server that produced it.
type ServerError struct {
	Server string
	Cause  error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s server: %v", e.Server, e.Cause)
}

func (e *ServerError) Unwrap() error { return e.Cause }
