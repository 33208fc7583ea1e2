package astivoice

import (
	"context"
	"fmt"
	"sync"

	"github.com/asticode/go-astilog"
	"github.com/asticode/go-astivoice/capture"
	"github.com/asticode/go-astivoice/verification"
	"github.com/pkg/errors"
)

// Status messages
const (
	StatusAcquiring         = "Requesting microphone access..."
	StatusMissingIdentifier = "Please enter a user ID first"
	StatusMissingSample     = "Please record a voice sample first"
	StatusRecording         = "Recording..."
	statusCapturedFormat    = "Audio captured (%d bytes)"
	statusDeviceFormat      = "Microphone unavailable: %s"
	statusErrorFormat       = "Error: %s"
	statusSubmittingFormat  = "Submitting to %s..."
	statusUnknownOpFormat   = "Unknown operation %s"
)

// Recorder records samples
type Recorder interface {
	Start(ctx context.Context) error
	State() capture.State
	Stop() (*capture.Sample, error)
}

var _ Recorder = (*capture.Controller)(nil)

// Verifier submits samples to the verification service
type Verifier interface {
	Submit(ctx context.Context, op verification.Operation, identifier string, s capture.Sample) (verification.Outcome, error)
}

var _ Verifier = (*verification.Client)(nil)

// State is a snapshot of a session
type State struct {
	CaptureState   capture.State  `json:"capture_state"`
	Classification Classification `json:"classification,omitempty"`
	HasSample      bool           `json:"has_sample"`
	Identifier     string         `json:"identifier"`
	SampleSize     int            `json:"sample_size"`
	Score          *float64       `json:"score,omitempty"`
	Status         string         `json:"status"`
	Submitting     bool           `json:"submitting"`
	Version        uint64         `json:"version"`
}

// state is the mutable state of a session. It's only accessed through Session.update.
type state struct {
	captureState capture.State
	identifier   string
	sample       *capture.Sample
	score        *float64
	status       string
	submitting   bool
	version      uint64
}

func (s state) snapshot() (o State) {
	o = State{
		CaptureState: s.captureState,
		Identifier:   s.identifier,
		Status:       s.status,
		Submitting:   s.submitting,
		Version:      s.version,
	}
	if s.sample != nil {
		o.HasSample = true
		o.SampleSize = s.sample.Size()
	}
	if s.score != nil {
		v := *s.score
		o.Score = &v
		o.Classification = Classify(v)
	}
	return
}

// Session ties the identifier, the capture and the submission result together.
// It's the single source of truth: every mutation goes through update and every resulting
// snapshot is dispatched to listeners in order.
type Session struct {
	d *dispatcher
	m *sync.Mutex // Locks s
	r Recorder
	s state
	v Verifier
}

// NewSession creates a new session
func NewSession(r Recorder, v Verifier) *Session {
	return &Session{
		d: newDispatcher(),
		m: &sync.Mutex{},
		r: r,
		s: state{captureState: r.State()},
		v: v,
	}
}

// Close implements the io.Closer interface
func (s *Session) Close() error {
	s.d.close()
	return nil
}

// On adds a listener to an event
func (s *Session) On(eventName string, l Listener) {
	s.d.addListener(eventName, l)
}

// State returns a snapshot of the session
func (s *Session) State() State {
	s.m.Lock()
	defer s.m.Unlock()
	return s.s.snapshot()
}

// update applies fn atomically. When fn returns false, nothing is dispatched.
func (s *Session) update(fn func(st *state) bool) State {
	s.m.Lock()
	defer s.m.Unlock()
	if !fn(&s.s) {
		return s.s.snapshot()
	}
	s.s.version++
	o := s.s.snapshot()
	s.d.dispatch(Event{Name: EventNameSessionUpdated, State: o})
	return o
}

// SetIdentifier sets the identifier. No validation is performed.
func (s *Session) SetIdentifier(v string) State {
	return s.update(func(st *state) bool {
		st.identifier = v
		return true
	})
}

// StartCapture starts a new recording. A new recording clears the previous score,
// the previous sample being kept until the new one is produced.
func (s *Session) StartCapture(ctx context.Context) (err error) {
	// Update status
	s.update(func(st *state) bool {
		if st.captureState == capture.StateAcquiring || st.captureState == capture.StateRecording {
			return false
		}
		st.captureState = capture.StateAcquiring
		st.status = StatusAcquiring
		return true
	})

	// Start recorder
	if err = s.r.Start(ctx); err != nil {
		// Recording is already in progress
		if err == capture.ErrAlreadyRecording {
			return
		}

		// Log
		astilog.Error(errors.Wrap(err, "astivoice: starting capture failed"))

		// Update status
		s.update(func(st *state) bool {
			st.captureState = s.r.State()
			st.status = fmt.Sprintf(statusDeviceFormat, errors.Cause(err))
			if e, ok := errors.Cause(err).(*capture.DeviceAccessError); ok {
				st.status = fmt.Sprintf(statusDeviceFormat, e.Err)
			}
			return true
		})
		return
	}

	// Update status
	// A stop may have been applied since the recorder started, in which case it wins
	s.update(func(st *state) bool {
		if st.captureState != capture.StateAcquiring {
			return false
		}
		st.captureState = capture.StateRecording
		st.score = nil
		st.status = StatusRecording
		return true
	})
	return
}

// StopCapture stops the recording and replaces the current sample.
// It's a no-op when nothing is being recorded.
func (s *Session) StopCapture() (err error) {
	// Stop recorder
	var v *capture.Sample
	if v, err = s.r.Stop(); err != nil {
		// Log
		astilog.Error(errors.Wrap(err, "astivoice: stopping capture failed"))

		// Update status
		s.update(func(st *state) bool {
			st.captureState = s.r.State()
			st.status = fmt.Sprintf(statusErrorFormat, errors.Cause(err))
			return true
		})
		return
	}

	// Nothing was being recorded
	if v == nil {
		return
	}

	// Sample is ready
	s.OnSampleReady(*v)
	return
}

// OnSampleReady replaces the current sample and clears the score
func (s *Session) OnSampleReady(v capture.Sample) State {
	astilog.Infof("astivoice: sample of %d bytes is ready", v.Size())
	return s.update(func(st *state) bool {
		st.captureState = capture.StateStopped
		st.sample = &v
		st.score = nil
		st.status = fmt.Sprintf(statusCapturedFormat, v.Size())
		return true
	})
}

// Submit sends the identifier and the current sample to the operation.
// Every outcome, including failures, ends up in the status line; the returned error is informational.
// At most one submission is in flight: overlapping calls get ErrSubmissionInFlight and leave the state
// untouched.
func (s *Session) Submit(ctx context.Context, op verification.Operation) (err error) {
	// Check and mark as submitting atomically
	var identifier string
	var v capture.Sample
	s.update(func(st *state) bool {
		switch {
		case st.submitting:
			err = ErrSubmissionInFlight
			return false
		case op != verification.OperationRegister && op != verification.OperationVerify:
			err = &PreconditionError{Reason: fmt.Sprintf("unknown operation %s", op)}
			st.status = fmt.Sprintf(statusUnknownOpFormat, op)
			return true
		case st.identifier == "":
			err = &PreconditionError{Reason: "identifier is missing"}
			st.status = StatusMissingIdentifier
			return true
		case st.sample == nil:
			err = &PreconditionError{Reason: "sample is missing"}
			st.status = StatusMissingSample
			return true
		}
		identifier = st.identifier
		v = *st.sample
		st.submitting = true
		st.status = fmt.Sprintf(statusSubmittingFormat, op)
		return true
	})
	if err != nil {
		return
	}

	// Submit
	var o verification.Outcome
	o, err = s.v.Submit(ctx, op, identifier, v)

	// Log
	if err != nil {
		astilog.Error(errors.Wrapf(err, "astivoice: submitting %s for %s failed", op, identifier))
	} else if o.Score != nil {
		astilog.Infof("astivoice: %s for %s succeeded with score %.4f (%s)", op, identifier, *o.Score, Classify(*o.Score))
	} else {
		astilog.Infof("astivoice: %s for %s succeeded", op, identifier)
	}

	// Apply outcome
	s.update(func(st *state) bool {
		st.submitting = false
		st.score = nil
		if err != nil {
			st.status = statusMessage(err)
			return true
		}
		st.status = o.Message
		if o.Score != nil {
			score := *o.Score
			st.score = &score
		}
		return true
	})
	return
}

// statusMessage converts an error into a status line
func statusMessage(err error) string {
	switch e := errors.Cause(err).(type) {
	case *verification.ServiceError:
		return e.StatusMessage()
	case *verification.TransportError:
		return e.StatusMessage()
	default:
		return fmt.Sprintf(statusErrorFormat, e)
	}
}
