package verification

import (
	"fmt"

	"github.com/pkg/errors"
)

// ServiceError is returned when the service answered with an error status or an unexpected body
type ServiceError struct {
	Detail     string
	StatusCode int
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("verification: service returned status %d: %s", e.StatusCode, e.StatusMessage())
}

// StatusMessage returns the message to surface to the user
func (e *ServiceError) StatusMessage() string {
	if e.Detail != "" {
		return e.Detail
	}
	return MessageError
}

// TransportError is returned when no response could be obtained from the service
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("verification: %s: %s", MessageUnreachable, e.Err)
}

// StatusMessage returns the message to surface to the user
func (e *TransportError) StatusMessage() string { return MessageUnreachable }

func (e *TransportError) Unwrap() error { return e.Err }

// IsServiceError checks whether the cause of err is a *ServiceError
func IsServiceError(err error) bool {
	_, ok := errors.Cause(err).(*ServiceError)
	return ok
}

// IsTransportError checks whether the cause of err is a *TransportError
func IsTransportError(err error) bool {
	_, ok := errors.Cause(err).(*TransportError)
	return ok
}
