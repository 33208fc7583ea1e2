package capture

import (
	"context"
	"io"
	"sync"

	"github.com/asticode/go-astilog"
	"github.com/pkg/errors"
)

// accumulator buffers chunks in arrival order
type accumulator struct {
	cs [][]byte
	m  *sync.Mutex // Locks cs
	n  int
}

func newAccumulator() *accumulator {
	return &accumulator{m: &sync.Mutex{}}
}

func (a *accumulator) add(b []byte) {
	// Copy chunk since the stream may reuse its buffer
	c := make([]byte, len(b))
	copy(c, b)

	// Append
	a.m.Lock()
	a.cs = append(a.cs, c)
	a.n += len(c)
	a.m.Unlock()
}

func (a *accumulator) bytes() (b []byte) {
	a.m.Lock()
	defer a.m.Unlock()
	b = make([]byte, 0, a.n)
	for _, c := range a.cs {
		b = append(b, c...)
	}
	return
}

// recording is a read loop running in a goroutine until it's stopped
type recording struct {
	a         *accumulator
	cancel    context.CancelFunc
	chanDone  chan error
	chanEnded chan struct{}
	ctx       context.Context
	s         Stream
}

func newRecording(s Stream) (r *recording) {
	r = &recording{
		a:         newAccumulator(),
		chanDone:  make(chan error, 1),
		chanEnded: make(chan struct{}),
		s:         s,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return
}

func (r *recording) start() {
	go func() {
		err := r.read()
		close(r.chanEnded)
		r.chanDone <- err
	}()
}

func (r *recording) read() (err error) {
	// Make sure to release the device
	defer func() {
		astilog.Debugf("capture: closing stream %p", r.s)
		if err := r.s.Close(); err != nil {
			astilog.Error(errors.Wrapf(err, "capture: closing stream %p failed", r.s))
		}
	}()

	// Read
	for {
		// Check context
		if r.ctx.Err() != nil {
			return
		}

		// Read
		var b []byte
		if b, err = r.s.Read(r.ctx); err != nil {
			// Stream was interrupted by the stop signal
			// or has no more chunks to deliver
			if r.ctx.Err() != nil || errors.Cause(err) == io.EOF {
				err = nil
				return
			}
			err = errors.Wrap(err, "capture: reading failed")
			return
		}

		// Add chunk
		if len(b) > 0 {
			r.a.add(b)
		}
	}
}

// stop sends the stop signal and waits for the read loop to be done, the device being released by then
func (r *recording) stop() (data []byte, err error) {
	r.cancel()
	err = <-r.chanDone
	data = r.a.bytes()
	return
}
