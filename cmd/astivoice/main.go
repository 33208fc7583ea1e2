package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/asticode/go-astilog"
	"github.com/asticode/go-astitools/config"
	"github.com/asticode/go-astivoice"
	"github.com/asticode/go-astivoice/capture"
	"github.com/asticode/go-astivoice/capture/file"
	astiportaudio "github.com/asticode/go-astivoice/capture/portaudio"
	"github.com/asticode/go-astivoice/verification"
	"github.com/pkg/errors"
)

// Flags
var (
	addr       = flag.String("addr", "", "the verification service address")
	config     = flag.String("c", "", "the config path")
	duration   = flag.Duration("d", 5*time.Second, "the recording duration, 0 meaning until the input ends")
	identifier = flag.String("id", "", "the user ID")
	input      = flag.String("i", "", "the input wav file path, the default microphone being used if empty")
	operation  = flag.String("op", string(verification.OperationVerify), "the operation (register or verify)")
	serve      = flag.Bool("serve", false, "runs the local control server")
	timeout    = flag.Duration("timeout", 0, "the verification service timeout")
)

func main() {
	// Parse flags
	flag.Parse()
	astilog.FlagInit()

	// Create configuration
	c := newConfiguration()

	// Run
	if err := run(c); err != nil {
		astilog.Fatal(errors.Wrap(err, "main: running failed"))
	}
}

// Configuration represents a configuration
type Configuration struct {
	PortAudio astiportaudio.Options `toml:"portaudio"`
	Voice     astivoice.Options     `toml:"voice"`
}

// newConfiguration creates a new configuration
func newConfiguration() *Configuration {
	// Global config
	gc := &Configuration{
		PortAudio: astiportaudio.Options{
			BufferLength: astiportaudio.DefaultBufferLength,
			NumChannels:  astiportaudio.DefaultNumChannels,
			SampleRate:   astiportaudio.DefaultSampleRate,
		},
		Voice: astivoice.Options{
			Server: astivoice.ServerOptions{
				ListenAddr: astivoice.DefaultListenAddr,
				Timeout:    astivoice.DefaultTimeout,
			},
			Verification: verification.Options{
				Timeout: verification.DefaultTimeout,
			},
		},
	}

	// Flag config
	fc := &Configuration{
		Voice: astivoice.Options{
			Verification: verification.Options{
				Addr:    *addr,
				Timeout: *timeout,
			},
		},
	}

	// Build configuration
	c, err := asticonfig.New(gc, *config, fc)
	if err != nil {
		astilog.Fatal(err)
	}
	return c.(*Configuration)
}

func run(c *Configuration) (err error) {
	// Create device
	var d capture.Device
	if *input != "" {
		d = file.NewDevice(*input, file.DefaultChunkSize)
	} else {
		// Init portaudio
		var p *astiportaudio.PortAudio
		if p, err = astiportaudio.New(); err != nil {
			err = errors.Wrap(err, "main: creating portaudio failed")
			return
		}
		defer p.Close()

		// Log
		astilog.Debugf("main: portaudio info: %s", p.Info())

		// Create device
		d = p.NewDevice(c.PortAudio)
	}

	// Create voice
	v := astivoice.New(d, c.Voice)
	defer v.Close()

	// Handle signals
	v.HandleSignals()

	// Log
	astilog.Debugf("main: using device %s and verification service %s", v.Controller().Device().Name(), v.Verification().Addr())

	// Serve
	if *serve {
		v.Serve()
		v.Wait()
		return
	}

	// Parse operation
	var op verification.Operation
	if op, err = verification.ParseOperation(*operation); err != nil {
		err = errors.Wrap(err, "main: parsing operation failed")
		return
	}

	// Set identifier
	s := v.Session()
	s.SetIdentifier(*identifier)

	// Start capture
	if err = s.StartCapture(v.Context()); err != nil {
		err = errors.Wrap(err, "main: starting capture failed")
		return
	}

	// Wait for the end of the recording
	var chanTimeout <-chan time.Time
	if *duration > 0 {
		chanTimeout = time.After(*duration)
	}
	select {
	case <-v.Context().Done():
	case <-v.Controller().Ended():
	case <-chanTimeout:
	}

	// Stop capture
	if err = s.StopCapture(); err != nil {
		err = errors.Wrap(err, "main: stopping capture failed")
		return
	}

	// Interrupted
	if v.Context().Err() != nil {
		err = errors.Wrap(v.Context().Err(), "main: context error")
		return
	}

	// Submit
	err = s.Submit(v.Context(), op)

	// Print
	st := s.State()
	fmt.Println(st.Status)
	if st.Score != nil {
		fmt.Printf("Score: %.4f (%s)\n", *st.Score, st.Classification)
	}
	if err != nil {
		err = errors.Wrapf(err, "main: submitting %s failed", op)
		return
	}
	return
}
