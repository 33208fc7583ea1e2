// Package astiportaudio captures audio from the default input device through PortAudio
package astiportaudio

import (
	"context"
	"fmt"

	"github.com/asticode/go-astilog"
	"github.com/asticode/go-astivoice/capture"
	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
)

// Defaults
const (
	DefaultBufferLength = 1600
	DefaultNumChannels  = 1
	DefaultSampleRate   = 16000
)

// bitDepth is the bit depth of samples read from the device
const bitDepth = 16

// Options represents device options
type Options struct {
	BufferLength int `toml:"buffer_length"` // In frames
	NumChannels  int `toml:"num_channels"`
	SampleRate   int `toml:"sample_rate"`
}

func (o *Options) setDefaults() {
	if o.BufferLength <= 0 {
		o.BufferLength = DefaultBufferLength
	}
	if o.NumChannels <= 0 {
		o.NumChannels = DefaultNumChannels
	}
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
}

// PortAudio wraps the PortAudio library lifecycle
type PortAudio struct{}

// New initializes PortAudio. Close must be called once done.
func New() (p *PortAudio, err error) {
	// Log
	astilog.Debug("portaudio: initializing portaudio")

	// Initialize
	if err = portaudio.Initialize(); err != nil {
		err = errors.Wrap(err, "portaudio: initializing portaudio failed")
		return
	}
	p = &PortAudio{}
	return
}

// Close implements the io.Closer interface
func (p *PortAudio) Close() (err error) {
	// Log
	astilog.Debug("portaudio: terminating portaudio")

	// Terminate
	if err = portaudio.Terminate(); err != nil {
		err = errors.Wrap(err, "portaudio: terminating portaudio failed")
		return
	}
	return
}

// Info describes the host APIs and input devices PortAudio sees
func (p *PortAudio) Info() (s string) {
	// Get host APIs
	as, err := portaudio.HostApis()
	if err != nil {
		return "getting portaudio host apis failed"
	}

	// Loop through APIs
	s = "\n+ Portaudio\n"
	for idxAPI, a := range as {
		s += fmt.Sprintf("|\n+--+ Host API #%d: %s - %s\n", idxAPI, a.Name, a.Type)
		if a.DefaultInputDevice != nil {
			s += fmt.Sprintf("|  |\n|  +--+ Default input device: %s\n", a.DefaultInputDevice.Name)
		}
		var ds []*portaudio.DeviceInfo
		for _, d := range a.Devices {
			if d.MaxInputChannels > 0 {
				ds = append(ds, d)
			}
		}
		if len(ds) > 0 {
			s += "|  |\n|  +--+ Input devices:\n"
			for idxDevice, d := range ds {
				s += fmt.Sprintf("|     |\n|     +--+ Device #%d: %s (sample rate: %.0fHz - max input channels: %v)\n", idxDevice, d.Name, d.DefaultSampleRate, d.MaxInputChannels)
			}
		}
	}
	return
}

// Device is the default input device
type Device struct {
	o Options
}

// NewDevice creates a new default input device
func (p *PortAudio) NewDevice(o Options) *Device {
	o.setDefaults()
	return &Device{o: o}
}

func (d *Device) Name() string { return "portaudio default input" }

// Open implements the capture.Device interface
func (d *Device) Open(ctx context.Context) (_ capture.Stream, err error) {
	// Check context
	if err = ctx.Err(); err != nil {
		return
	}

	// Create stream
	s := &Stream{
		b: make([]int16, d.o.BufferLength*d.o.NumChannels),
		o: d.o,
	}

	// Open default stream
	astilog.Debugf("portaudio: opening default stream %p", s)
	if s.s, err = portaudio.OpenDefaultStream(d.o.NumChannels, 0, float64(d.o.SampleRate), d.o.BufferLength, s.b); err != nil {
		err = errors.Wrapf(err, "portaudio: opening default stream %p failed", s)
		return
	}

	// Start
	astilog.Debugf("portaudio: starting stream %p", s)
	if err = s.s.Start(); err != nil {
		err = errors.Wrapf(err, "portaudio: starting stream %p failed", s)
		if errClose := s.s.Close(); errClose != nil {
			astilog.Error(errors.Wrapf(errClose, "portaudio: closing stream %p failed", s))
		}
		return
	}
	return s, nil
}
