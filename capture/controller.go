package capture

import (
	"context"
	"sync"

	"github.com/asticode/go-astilog"
	"github.com/pkg/errors"
)

// Controller owns the device and the in-progress recording. Consumers only ever get complete samples.
type Controller struct {
	d Device
	m *sync.Mutex // Locks r and s
	r *recording
	s State
}

// NewController creates a new controller
func NewController(d Device) *Controller {
	return &Controller{
		d: d,
		m: &sync.Mutex{},
		s: StateIdle,
	}
}

func (c *Controller) Device() Device { return c.d }

// State returns the controller's state
func (c *Controller) State() State {
	c.m.Lock()
	defer c.m.Unlock()
	return c.s
}

func (c *Controller) setState(s State) {
	c.m.Lock()
	c.s = s
	c.m.Unlock()
}

// Start acquires the device and starts buffering chunks.
// It blocks until access to the device is granted or denied.
func (c *Controller) Start(ctx context.Context) (err error) {
	// Only one recording at a time
	c.m.Lock()
	if c.s == StateAcquiring || c.s == StateRecording {
		c.m.Unlock()
		err = ErrAlreadyRecording
		return
	}
	c.s = StateAcquiring
	c.m.Unlock()

	// Open device
	astilog.Debugf("capture: opening device %s", c.d.Name())
	var s Stream
	if s, err = c.d.Open(ctx); err != nil {
		c.setState(StateIdle)
		err = &DeviceAccessError{Device: c.d.Name(), Err: err}
		return
	}

	// Start recording
	c.m.Lock()
	c.r = newRecording(s)
	c.r.start()
	c.s = StateRecording
	c.m.Unlock()

	// Log
	astilog.Infof("capture: recording from device %s", c.d.Name())
	return
}

// Ended returns a channel closed once the stream of the in-progress recording has no more chunks to deliver.
// It returns nil when nothing is being recorded.
func (c *Controller) Ended() <-chan struct{} {
	c.m.Lock()
	defer c.m.Unlock()
	if c.r == nil || c.s != StateRecording {
		return nil
	}
	return c.r.chanEnded
}

// Stop finalizes the recording into a sample once the device has been released.
// It returns a nil sample and a nil error when nothing is being recorded.
func (c *Controller) Stop() (s *Sample, err error) {
	// Detach recording so that concurrent stops are no-ops
	c.m.Lock()
	r := c.r
	if c.s != StateRecording || r == nil {
		c.m.Unlock()
		return
	}
	c.r = nil
	c.m.Unlock()

	// Stop recording
	var data []byte
	var errRead error
	if data, errRead = r.stop(); errRead != nil {
		// Keep what was buffered before the failure
		astilog.Error(errors.Wrap(errRead, "capture: recording was interrupted"))
	}

	// Log
	astilog.Infof("capture: recording from device %s stopped with %d bytes", c.d.Name(), len(data))

	// Nothing was recorded
	if len(data) == 0 {
		c.setState(StateIdle)
		err = ErrEmptyRecording
		return
	}

	// Package
	if p, ok := r.s.(Packager); ok {
		if data, err = p.Package(data); err != nil {
			c.setState(StateIdle)
			err = errors.Wrap(err, "capture: packaging recording failed")
			return
		}
	}

	// Create sample
	v := NewSample(data)
	s = &v
	c.setState(StateStopped)
	return
}
