package astiportaudio

import (
	"context"
	"encoding/binary"

	"github.com/asticode/go-astilog"
	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
)

// Stream is a started PortAudio input stream producing little endian 16 bits PCM chunks
type Stream struct {
	b []int16
	o Options
	s *portaudio.Stream
}

// Read implements the capture.Stream interface
func (s *Stream) Read(ctx context.Context) (b []byte, err error) {
	// Read
	if err = s.s.Read(); err != nil {
		// Overflows only mean some frames were dropped
		if err != portaudio.InputOverflowed {
			err = errors.Wrapf(err, "portaudio: reading from stream %p failed", s)
			return
		}
		astilog.Debugf("portaudio: input overflowed on stream %p", s)
		err = nil
	}

	// Clone buffer
	b = make([]byte, 2*len(s.b))
	for idx, v := range s.b {
		binary.LittleEndian.PutUint16(b[2*idx:], uint16(v))
	}
	return
}

// Close implements the capture.Stream interface
func (s *Stream) Close() (err error) {
	// Stop
	astilog.Debugf("portaudio: stopping stream %p", s)
	if err = s.s.Stop(); err != nil {
		astilog.Error(errors.Wrapf(err, "portaudio: stopping stream %p failed", s))
	}

	// Close
	astilog.Debugf("portaudio: closing stream %p", s)
	if err = s.s.Close(); err != nil {
		err = errors.Wrapf(err, "portaudio: closing stream %p failed", s)
		return
	}
	return
}

// Package implements the capture.Packager interface
func (s *Stream) Package(data []byte) ([]byte, error) {
	return packageWAV(data, s.o.NumChannels, s.o.SampleRate)
}
