package astiportaudio

import (
	"encoding/binary"
	"io/ioutil"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// Audio formats
const (
	audioFormatPCM = 1
)

// packageWAV wraps little endian 16 bits PCM into a WAV container
func packageWAV(data []byte, numChannels, sampleRate int) (o []byte, err error) {
	// Convert to samples
	ss := make([]int, len(data)/2)
	for idx := range ss {
		ss[idx] = int(int16(binary.LittleEndian.Uint16(data[2*idx:])))
	}

	// Create wav file
	// The encoder needs to seek to write its header
	var f *os.File
	if f, err = ioutil.TempFile("", "astivoice-*.wav"); err != nil {
		err = errors.Wrap(err, "portaudio: creating wav file failed")
		return
	}
	defer os.Remove(f.Name())
	defer f.Close()

	// Create encoder
	e := wav.NewEncoder(f, sampleRate, bitDepth, numChannels, audioFormatPCM)

	// Write
	if err = e.Write(&audio.IntBuffer{
		Data: ss,
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: bitDepth,
	}); err != nil {
		err = errors.Wrap(err, "portaudio: writing wav samples failed")
		return
	}

	// Close encoder so that the header is written
	if err = e.Close(); err != nil {
		err = errors.Wrap(err, "portaudio: closing wav encoder failed")
		return
	}

	// Read
	if o, err = ioutil.ReadFile(f.Name()); err != nil {
		err = errors.Wrapf(err, "portaudio: reading %s failed", f.Name())
		return
	}
	return
}
