package astivoice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/asticode/go-astivoice/capture"
	"github.com/asticode/go-astivoice/verification"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type mockedRecorder struct {
	errStart error
	errStop  error
	m        *sync.Mutex
	sample   *capture.Sample
	state    capture.State
}

func newMockedRecorder() *mockedRecorder {
	return &mockedRecorder{m: &sync.Mutex{}}
}

func (r *mockedRecorder) Start(ctx context.Context) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.state == capture.StateRecording {
		return capture.ErrAlreadyRecording
	}
	if r.errStart != nil {
		r.state = capture.StateIdle
		return &capture.DeviceAccessError{Device: "mocked", Err: r.errStart}
	}
	r.state = capture.StateRecording
	return nil
}

func (r *mockedRecorder) State() capture.State {
	r.m.Lock()
	defer r.m.Unlock()
	return r.state
}

func (r *mockedRecorder) Stop() (*capture.Sample, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.state != capture.StateRecording {
		return nil, nil
	}
	if r.errStop != nil {
		r.state = capture.StateIdle
		return nil, r.errStop
	}
	r.state = capture.StateStopped
	return r.sample, nil
}

type submission struct {
	identifier string
	op         verification.Operation
	sample     []byte
}

type mockedVerifier struct {
	chanRelease chan struct{}
	chanStarted chan struct{}
	err         error
	m           *sync.Mutex
	outcome     verification.Outcome
	ss          []submission
}

func newMockedVerifier() *mockedVerifier {
	return &mockedVerifier{m: &sync.Mutex{}}
}

func (v *mockedVerifier) Submit(ctx context.Context, op verification.Operation, identifier string, s capture.Sample) (verification.Outcome, error) {
	v.m.Lock()
	v.ss = append(v.ss, submission{identifier: identifier, op: op, sample: s.Bytes()})
	v.m.Unlock()
	if v.chanStarted != nil {
		close(v.chanStarted)
	}
	if v.chanRelease != nil {
		<-v.chanRelease
	}
	return v.outcome, v.err
}

func (v *mockedVerifier) submissions() []submission {
	v.m.Lock()
	defer v.m.Unlock()
	return append([]submission{}, v.ss...)
}

func newSample(b string) *capture.Sample {
	s := capture.NewSample([]byte(b))
	return &s
}

func float64Ptr(f float64) *float64 { return &f }

func record(t *testing.T, s *Session, r *mockedRecorder, b string) {
	r.sample = newSample(b)
	assert.NoError(t, s.StartCapture(context.Background()))
	assert.NoError(t, s.StopCapture())
}

func TestSessionVerifyMatched(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	v.outcome = verification.Outcome{Message: verification.MessageSuccess, Score: float64Ptr(0.82)}
	s := NewSession(r, v)
	defer s.Close()

	s.SetIdentifier("alice")
	record(t, s, r, "two seconds of audio")
	assert.NoError(t, s.Submit(context.Background(), verification.OperationVerify))

	st := s.State()
	assert.Equal(t, verification.MessageSuccess, st.Status)
	if assert.NotNil(t, st.Score) {
		assert.Equal(t, 0.82, *st.Score)
	}
	assert.Equal(t, ClassificationMatched, st.Classification)
	assert.False(t, st.Submitting)
	assert.Equal(t, []submission{{identifier: "alice", op: verification.OperationVerify, sample: []byte("two seconds of audio")}}, v.submissions())
}

func TestSessionMissingIdentifier(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	s := NewSession(r, v)
	defer s.Close()

	record(t, s, r, "audio")
	err := s.Submit(context.Background(), verification.OperationRegister)
	_, ok := err.(*PreconditionError)
	assert.True(t, ok)
	assert.Equal(t, StatusMissingIdentifier, s.State().Status)
	assert.Empty(t, v.submissions())
}

func TestSessionMissingSample(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	s := NewSession(r, v)
	defer s.Close()

	s.SetIdentifier("alice")
	err := s.Submit(context.Background(), verification.OperationVerify)
	_, ok := err.(*PreconditionError)
	assert.True(t, ok)
	assert.Equal(t, StatusMissingSample, s.State().Status)
	assert.Empty(t, v.submissions())

	// Unknown operation
	record(t, s, r, "audio")
	_, ok = s.Submit(context.Background(), verification.Operation("delete")).(*PreconditionError)
	assert.True(t, ok)
	assert.Empty(t, v.submissions())
}

func TestSessionRegisterClearsScore(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	s := NewSession(r, v)
	defer s.Close()

	s.SetIdentifier("alice")
	record(t, s, r, "audio")
	v.outcome = verification.Outcome{Score: float64Ptr(0.5), Message: "Voice Verified"}
	assert.NoError(t, s.Submit(context.Background(), verification.OperationVerify))
	assert.NotNil(t, s.State().Score)
	assert.Equal(t, ClassificationNotMatched, s.State().Classification)

	v.outcome = verification.Outcome{Message: "Enrolled"}
	assert.NoError(t, s.Submit(context.Background(), verification.OperationRegister))
	st := s.State()
	assert.Equal(t, "Enrolled", st.Status)
	assert.Nil(t, st.Score)
	assert.Equal(t, Classification(""), st.Classification)
}

func TestSessionServiceError(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	s := NewSession(r, v)
	defer s.Close()

	s.SetIdentifier("alice")
	record(t, s, r, "audio")
	v.outcome = verification.Outcome{Score: float64Ptr(0.9)}
	assert.NoError(t, s.Submit(context.Background(), verification.OperationVerify))

	v.err = &verification.ServiceError{Detail: "No match", StatusCode: 401}
	err := s.Submit(context.Background(), verification.OperationVerify)
	assert.True(t, verification.IsServiceError(err))
	st := s.State()
	assert.Contains(t, st.Status, "No match")
	assert.Nil(t, st.Score)
}

func TestSessionTransportError(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	v.err = &verification.TransportError{Err: errors.New("connection refused")}
	s := NewSession(r, v)
	defer s.Close()

	s.SetIdentifier("alice")
	record(t, s, r, "audio")
	err := s.Submit(context.Background(), verification.OperationVerify)
	assert.True(t, verification.IsTransportError(err))
	st := s.State()
	assert.Equal(t, verification.MessageUnreachable, st.Status)
	assert.NotEqual(t, verification.MessageError, st.Status)
	assert.Nil(t, st.Score)
}

func TestSessionRejectsOverlappingSubmissions(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	v.chanRelease = make(chan struct{})
	v.chanStarted = make(chan struct{})
	v.outcome = verification.Outcome{Message: "Voice Verified", Score: float64Ptr(0.8)}
	s := NewSession(r, v)
	defer s.Close()

	s.SetIdentifier("alice")
	record(t, s, r, "audio")

	// First submission
	chanDone := make(chan error)
	go func() { chanDone <- s.Submit(context.Background(), verification.OperationVerify) }()
	<-v.chanStarted

	// Overlapping submission
	st := s.State()
	assert.True(t, st.Submitting)
	assert.Equal(t, ErrSubmissionInFlight, s.Submit(context.Background(), verification.OperationRegister))
	assert.Equal(t, st, s.State())

	// Release
	close(v.chanRelease)
	assert.NoError(t, <-chanDone)
	assert.Len(t, v.submissions(), 1)
	assert.False(t, s.State().Submitting)
	assert.Equal(t, "Voice Verified", s.State().Status)
}

func TestSessionScoreUntouchedWhileSubmitting(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	s := NewSession(r, v)
	defer s.Close()

	s.SetIdentifier("alice")
	record(t, s, r, "audio")
	v.outcome = verification.Outcome{Score: float64Ptr(0.9)}
	assert.NoError(t, s.Submit(context.Background(), verification.OperationVerify))

	v.chanRelease = make(chan struct{})
	v.chanStarted = make(chan struct{})
	v.outcome = verification.Outcome{Score: float64Ptr(0.1)}
	chanDone := make(chan error)
	go func() { chanDone <- s.Submit(context.Background(), verification.OperationVerify) }()
	<-v.chanStarted
	if st := s.State(); assert.NotNil(t, st.Score) {
		assert.Equal(t, 0.9, *st.Score)
	}
	close(v.chanRelease)
	assert.NoError(t, <-chanDone)
	if st := s.State(); assert.NotNil(t, st.Score) {
		assert.Equal(t, 0.1, *st.Score)
	}
}

func TestSessionNewRecordingReplacesSampleAndClearsScore(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	v.outcome = verification.Outcome{Score: float64Ptr(0.9)}
	s := NewSession(r, v)
	defer s.Close()

	s.SetIdentifier("alice")
	record(t, s, r, "old sample")
	assert.NoError(t, s.Submit(context.Background(), verification.OperationVerify))
	assert.NotNil(t, s.State().Score)

	// Starting clears the score, the previous sample being kept until the new one is produced
	r.sample = newSample("new")
	assert.NoError(t, s.StartCapture(context.Background()))
	st := s.State()
	assert.Nil(t, st.Score)
	assert.Equal(t, capture.StateRecording, st.CaptureState)
	assert.Equal(t, len("old sample"), st.SampleSize)

	// Stopping replaces the sample
	assert.NoError(t, s.StopCapture())
	assert.Equal(t, 3, s.State().SampleSize)
	assert.NoError(t, s.Submit(context.Background(), verification.OperationVerify))
	ss := v.submissions()
	assert.Equal(t, []byte("new"), ss[len(ss)-1].sample)
}

func TestSessionDeviceAccessError(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	r.errStart = errors.New("permission denied")
	s := NewSession(r, v)
	defer s.Close()

	err := s.StartCapture(context.Background())
	_, ok := err.(*capture.DeviceAccessError)
	assert.True(t, ok)
	st := s.State()
	assert.Equal(t, capture.StateIdle, st.CaptureState)
	assert.Equal(t, "Microphone unavailable: permission denied", st.Status)

	// Session is still usable
	r.errStart = nil
	record(t, s, r, "audio")
	assert.True(t, s.State().HasSample)
}

// stoppingRecorder stops the session as soon as the recording has started, unless s is nil
type stoppingRecorder struct {
	*mockedRecorder
	s *Session
}

func (r *stoppingRecorder) Start(ctx context.Context) (err error) {
	if err = r.mockedRecorder.Start(ctx); err != nil || r.s == nil {
		return
	}
	return r.s.StopCapture()
}

func TestSessionStopDuringStartWins(t *testing.T) {
	r, v := &stoppingRecorder{mockedRecorder: newMockedRecorder()}, newMockedVerifier()
	r.sample = newSample("audio")
	s := NewSession(r, v)
	defer s.Close()
	r.s = s

	assert.NoError(t, s.StartCapture(context.Background()))
	st := s.State()
	assert.Equal(t, capture.StateStopped, r.State())
	assert.Equal(t, r.State(), st.CaptureState)
	assert.Equal(t, "Audio captured (5 bytes)", st.Status)
	assert.True(t, st.HasSample)

	// Session is still usable
	r.s = nil
	r.sample = newSample("new audio")
	assert.NoError(t, s.StartCapture(context.Background()))
	assert.Equal(t, capture.StateRecording, s.State().CaptureState)
	assert.NoError(t, s.StopCapture())
	st = s.State()
	assert.Equal(t, capture.StateStopped, st.CaptureState)
	assert.Equal(t, len("new audio"), st.SampleSize)
}

func TestSessionStopCaptureIsNoopWhenIdle(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	s := NewSession(r, v)
	defer s.Close()

	st := s.State()
	assert.NoError(t, s.StopCapture())
	assert.Equal(t, st, s.State())
}

func TestSessionEmptyRecordingKeepsPreviousSample(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	s := NewSession(r, v)
	defer s.Close()

	record(t, s, r, "audio")
	r.errStop = capture.ErrEmptyRecording
	assert.NoError(t, s.StartCapture(context.Background()))
	assert.Equal(t, capture.ErrEmptyRecording, s.StopCapture())
	st := s.State()
	assert.True(t, st.HasSample)
	assert.Equal(t, 5, st.SampleSize)
	assert.Equal(t, capture.StateIdle, st.CaptureState)
}

func TestSessionListenersReceiveOrderedUpdates(t *testing.T) {
	r, v := newMockedRecorder(), newMockedVerifier()
	s := NewSession(r, v)
	defer s.Close()

	m := &sync.Mutex{}
	var vs []uint64
	chanDone := make(chan struct{})
	s.On(EventNameSessionUpdated, func(e Event) error {
		m.Lock()
		defer m.Unlock()
		vs = append(vs, e.State.Version)
		if e.State.Identifier == "done" {
			close(chanDone)
		}
		return nil
	})

	for _, id := range []string{"a", "b", "c", "done"} {
		s.SetIdentifier(id)
	}

	select {
	case <-chanDone:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	m.Lock()
	assert.Equal(t, []uint64{1, 2, 3, 4}, vs)
	m.Unlock()
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassificationMatched, Classify(0.76))
	assert.Equal(t, ClassificationNotMatched, Classify(0.75))
	assert.Equal(t, ClassificationMatched, Classify(1.0))
	assert.Equal(t, ClassificationNotMatched, Classify(0.0))

	defer func(v float64) { MatchThreshold = v }(MatchThreshold)
	MatchThreshold = 0.5
	assert.Equal(t, ClassificationMatched, Classify(0.6))
}
