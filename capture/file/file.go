// Package file replays an audio file as if it were captured live
package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/asticode/go-astilog"
	"github.com/asticode/go-astivoice/capture"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// DefaultChunkSize is the default number of bytes per chunk
const DefaultChunkSize = 4096

// Device replays the file located at a path
type Device struct {
	chunkSize int
	path      string
}

// NewDevice creates a new file device
func NewDevice(path string, chunkSize int) *Device {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Device{
		chunkSize: chunkSize,
		path:      path,
	}
}

func (d *Device) Name() string { return d.path }

// Open implements the capture.Device interface
func (d *Device) Open(ctx context.Context) (_ capture.Stream, err error) {
	// Open file
	astilog.Debugf("file: opening %s", d.path)
	var f *os.File
	if f, err = os.Open(d.path); err != nil {
		err = errors.Wrapf(err, "file: opening %s failed", d.path)
		return
	}

	// Make sure wav files are valid
	if strings.EqualFold(filepath.Ext(d.path), ".wav") {
		if !wav.NewDecoder(f).IsValidFile() {
			f.Close()
			err = errors.Errorf("file: %s is not a valid wav file", d.path)
			return
		}

		// Rewind
		if _, err = f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			err = errors.Wrapf(err, "file: seeking %s failed", d.path)
			return
		}
	}
	return &Stream{
		b: make([]byte, d.chunkSize),
		f: f,
	}, nil
}

// Stream reads a file chunk by chunk
type Stream struct {
	b []byte
	f *os.File
}

// Read implements the capture.Stream interface
func (s *Stream) Read(ctx context.Context) (b []byte, err error) {
	// Check context
	if err = ctx.Err(); err != nil {
		return
	}

	// Read
	var n int
	if n, err = s.f.Read(s.b); err != nil {
		if err != io.EOF {
			err = errors.Wrapf(err, "file: reading %s failed", s.f.Name())
		}
		return
	}

	// Clone buffer
	b = make([]byte, n)
	copy(b, s.b[:n])
	return
}

// Close implements the capture.Stream interface
func (s *Stream) Close() (err error) {
	astilog.Debugf("file: closing %s", s.f.Name())
	if err = s.f.Close(); err != nil {
		err = errors.Wrapf(err, "file: closing %s failed", s.f.Name())
		return
	}
	return
}
