package astivoice

import (
	"encoding/json"
	"net/http"

	"github.com/asticode/go-astilog"
	"github.com/asticode/go-astivoice/capture"
	"github.com/asticode/go-astivoice/verification"
	"github.com/pkg/errors"
)

// APIError represents an API error
type APIError struct {
	Message string `json:"message"`
	State   *State `json:"state,omitempty"`
}

// HTTPStatusCode returns the HTTP status code matching an error
func HTTPStatusCode(err error) int {
	switch e := errors.Cause(err).(type) {
	case *PreconditionError:
		return http.StatusUnprocessableEntity
	case *capture.DeviceAccessError:
		return http.StatusServiceUnavailable
	case *verification.ServiceError:
		return http.StatusBadGateway
	case *verification.TransportError:
		return http.StatusServiceUnavailable
	default:
		if e == ErrSubmissionInFlight || e == capture.ErrAlreadyRecording {
			return http.StatusConflict
		} else if e == capture.ErrEmptyRecording {
			return http.StatusUnprocessableEntity
		}
		return http.StatusInternalServerError
	}
}

// WriteHTTPError writes an error. When provided, the state is attached to the body.
func WriteHTTPError(rw http.ResponseWriter, code int, err error, s *State) {
	rw.WriteHeader(code)
	astilog.Error(err)
	if err := json.NewEncoder(rw).Encode(APIError{Message: err.Error(), State: s}); err != nil {
		astilog.Error(errors.Wrap(err, "astivoice: marshaling failed"))
	}
}

// WriteHTTPData writes data
func WriteHTTPData(rw http.ResponseWriter, data interface{}) {
	if err := json.NewEncoder(rw).Encode(data); err != nil {
		WriteHTTPError(rw, http.StatusInternalServerError, errors.Wrap(err, "astivoice: json encoding failed"), nil)
		return
	}
}
