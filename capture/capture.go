// Package capture turns a live audio input into a single in-memory sample.
package capture

import (
	"bytes"
	"context"
	"io"
)

// Sample defaults
const (
	FileName = "recording.wav"
	MIMEType = "audio/wav"
)

// State is the state of a Controller
type State int

// States
const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// MarshalText implements the encoding.TextMarshaler interface
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Device is an audio input that can be opened for exclusive use
type Device interface {
	Name() string
	// Open blocks until access to the device is granted or denied.
	// The returned stream is already started.
	Open(ctx context.Context) (Stream, error)
}

// Stream produces chunks of audio in the order the device delivers them.
// Close must release every underlying handle so that the device is available to other consumers.
type Stream interface {
	Close() error
	Read(ctx context.Context) ([]byte, error)
}

// Packager is implemented by streams whose concatenated chunks need a container before being sent,
// e.g. raw PCM that must be wrapped in a RIFF header.
type Packager interface {
	Package(data []byte) ([]byte, error)
}

// Sample is a complete recording. It is never mutated once created.
type Sample struct {
	data     []byte
	mimeType string
	name     string
}

// NewSample creates a new sample. data is copied.
func NewSample(data []byte) Sample {
	s := Sample{
		data:     make([]byte, len(data)),
		mimeType: MIMEType,
		name:     FileName,
	}
	copy(s.data, data)
	return s
}

// Bytes returns a copy of the sample's payload
func (s Sample) Bytes() []byte {
	b := make([]byte, len(s.data))
	copy(b, s.data)
	return b
}

func (s Sample) FileName() string { return s.name }

func (s Sample) IsZero() bool { return len(s.data) == 0 }

func (s Sample) MIMEType() string { return s.mimeType }

// Reader returns a reader over the sample's payload
func (s Sample) Reader() io.Reader { return bytes.NewReader(s.data) }

func (s Sample) Size() int { return len(s.data) }
