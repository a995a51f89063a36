package portaudio

import (
	"fmt"
	"sync"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
)

// InputStream captures audio from an input device. Read returns one buffer
// period per call and blocks until it is available.
type InputStream struct {
	format pcm.Format
	device DeviceInfo

	mu     sync.Mutex
	stream *stream
	mono   []byte
	closed bool
}

// NewInputStream opens and starts capture on device (DefaultDevice for the
// host default). A mono device feeding a stereo format is upmixed.
func NewInputStream(format pcm.Format, bufferDuration time.Duration, device int) (*InputStream, error) {
	info, err := Device(device)
	if err != nil {
		return nil, err
	}
	channels := format.Channels()
	if info.MaxInputChannels < 1 {
		return nil, fmt.Errorf("portaudio: device %d %q has no input channels", info.Index, info.Name)
	}
	if info.MaxInputChannels < channels {
		channels = 1
	}

	frames := int(format.FramesInDuration(bufferDuration))
	s, err := openStream(input, info.Index, channels, format.SampleRate(), frames)
	if err != nil {
		return nil, err
	}
	is := &InputStream{
		format: format,
		device: *info,
		stream: s,
	}
	if channels != format.Channels() {
		is.mono = make([]byte, s.bytes())
	}
	return is, nil
}

// Read reads one period of little-endian PCM into p.
func (is *InputStream) Read(p []byte) (int, error) {
	is.mu.Lock()
	defer is.mu.Unlock()

	if is.closed {
		return 0, ErrStreamClosed
	}
	if is.mono == nil {
		return is.stream.read(p)
	}
	n, err := is.stream.read(is.mono)
	if err != nil {
		return 0, err
	}
	return pcm.UpmixMono(p, is.mono[:n]), nil
}

// Format returns the PCM format.
func (is *InputStream) Format() pcm.Format {
	return is.format
}

// Device returns the capture device.
func (is *InputStream) Device() DeviceInfo {
	return is.device
}

// Close stops and closes the stream.
func (is *InputStream) Close() error {
	is.mu.Lock()
	defer is.mu.Unlock()

	if is.closed {
		return nil
	}
	is.closed = true
	return is.stream.close()
}

// OutputStream plays audio to an output device. It implements io.Writer;
// writes of any size are split into device periods.
type OutputStream struct {
	format pcm.Format

	mu     sync.Mutex
	stream *stream
	closed bool
}

// NewOutputStream opens and starts playback on device (DefaultDevice for the
// host default).
func NewOutputStream(format pcm.Format, bufferDuration time.Duration, device int) (*OutputStream, error) {
	frames := int(format.FramesInDuration(bufferDuration))
	s, err := openStream(output, device, format.Channels(), format.SampleRate(), frames)
	if err != nil {
		return nil, err
	}
	return &OutputStream{format: format, stream: s}, nil
}

// Write plays p. Trailing bytes that do not form a whole frame are dropped.
func (os *OutputStream) Write(p []byte) (int, error) {
	os.mu.Lock()
	defer os.mu.Unlock()

	if os.closed {
		return 0, ErrStreamClosed
	}
	period := os.stream.bytes()
	for off := 0; off < len(p); off += period {
		end := min(off+period, len(p))
		if err := os.stream.write(p[off:end]); err != nil {
			return off, err
		}
	}
	return len(p), nil
}

// Format returns the PCM format.
func (os *OutputStream) Format() pcm.Format {
	return os.format
}

// Close stops and closes the stream.
func (os *OutputStream) Close() error {
	os.mu.Lock()
	defer os.mu.Unlock()

	if os.closed {
		return nil
	}
	os.closed = true
	return os.stream.close()
}
