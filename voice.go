package astivoice

import (
	"context"

	"github.com/asticode/go-astilog"
	astiworker "github.com/asticode/go-astitools/worker"
	"github.com/asticode/go-astivoice/capture"
	"github.com/asticode/go-astivoice/verification"
	"github.com/asticode/go-astiws"
	"github.com/pkg/errors"
)

// Options are voice options
type Options struct {
	Server       ServerOptions        `toml:"server"`
	Verification verification.Options `toml:"verification"`
}

// Voice ties a capture device, a verification client and a session together and exposes them
// through a local control server
type Voice struct {
	c  *capture.Controller
	o  Options
	s  *Session
	v  *verification.Client
	w  *astiworker.Worker
	ws *astiws.Manager
}

// New creates a new voice
func New(d capture.Device, o Options) (v *Voice) {
	// Default options
	o.Server.setDefaults()

	// Create voice
	v = &Voice{
		c:  capture.NewController(d),
		o:  o,
		v:  verification.New(o.Verification),
		w:  astiworker.NewWorker(),
		ws: astiws.NewManager(astiws.ManagerConfiguration{MaxMessageSize: o.Server.MaxMessageSize}),
	}

	// Create session
	v.s = NewSession(v.c, v.v)

	// Add session listeners
	v.s.On(EventNameSessionUpdated, v.sendSessionToClients)
	return
}

// Close implements the io.Closer interface
func (v *Voice) Close() error {
	// Stop capture
	if v.c.State() == capture.StateRecording {
		astilog.Debug("astivoice: stopping capture")
		if _, err := v.c.Stop(); err != nil {
			astilog.Error(errors.Wrap(err, "astivoice: stopping capture failed"))
		}
	}

	// Close websocket clients
	astilog.Debug("astivoice: closing websocket clients")
	if err := v.ws.Close(); err != nil {
		astilog.Error(errors.Wrap(err, "astivoice: closing websocket clients failed"))
	}

	// Close session
	astilog.Debug("astivoice: closing session")
	if err := v.s.Close(); err != nil {
		astilog.Error(errors.Wrap(err, "astivoice: closing session failed"))
	}
	return nil
}

// Context returns the voice context, cancelled once a stop signal has been received
func (v *Voice) Context() context.Context { return v.w.Context() }

// Controller returns the capture controller
func (v *Voice) Controller() *capture.Controller { return v.c }

// Session returns the session
func (v *Voice) Session() *Session { return v.s }

// Verification returns the verification client
func (v *Voice) Verification() *verification.Client { return v.v }

// HandleSignals handles signals
func (v *Voice) HandleSignals() {
	v.w.HandleSignals()
}

// Wait waits for the voice to be stopped
func (v *Voice) Wait() {
	v.w.Wait()
}

// Stop stops the voice
func (v *Voice) Stop() {
	v.w.Stop()
}

func (v *Voice) sendSessionToClients(e Event) error {
	// Get clients
	var cs []*astiws.Client
	v.ws.Clients(func(_ interface{}, c *astiws.Client) (err error) {
		cs = append(cs, c)
		return
	})

	// Loop through clients
	for _, c := range cs {
		// Write
		if err := c.Write(websocketEventNameSessionUpdated, e.State); err != nil {
			astilog.Error(errors.Wrapf(err, "astivoice: writing %s event to client %p failed", websocketEventNameSessionUpdated, c))
		}
	}
	return nil
}
