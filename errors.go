package astivoice

import "github.com/pkg/errors"

// ErrSubmissionInFlight is returned when a submission is requested while another one is outstanding
var ErrSubmissionInFlight = errors.New("astivoice: a submission is already in progress")

// PreconditionError is returned when a submission is attempted without the data it needs.
// No request is sent.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return "astivoice: " + e.Reason }
