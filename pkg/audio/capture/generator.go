package capture

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
	"github.com/haivivi/pcmlink/pkg/uplink"
)

// DefaultToneHz is the frequency of "tone" without an argument.
const DefaultToneHz = 440

// toneAmplitude is -6 dBFS.
const toneAmplitude = 0.5

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func openSilence(_ string, format pcm.Format, _ time.Duration) (uplink.Source, error) {
	return newPaced(zeroReader{}, nil, format), nil
}

// toneReader generates a continuous sine wave on every channel.
type toneReader struct {
	format pcm.Format
	step   float64
	phase  float64
}

func newToneReader(format pcm.Format, hz float64) *toneReader {
	return &toneReader{
		format: format,
		step:   2 * math.Pi * hz / float64(format.SampleRate()),
	}
}

func (t *toneReader) Read(p []byte) (int, error) {
	fb := t.format.FrameBytes()
	n := len(p) / fb * fb
	for i := 0; i < n; i += fb {
		v := uint16(int16(math.Round(toneAmplitude * math.MaxInt16 * math.Sin(t.phase))))
		for c := 0; c < fb; c += 2 {
			binary.LittleEndian.PutUint16(p[i+c:], v)
		}
		t.phase += t.step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return n, nil
}

func openTone(arg string, format pcm.Format, _ time.Duration) (uplink.Source, error) {
	hz := float64(DefaultToneHz)
	if arg = strings.TrimSuffix(strings.TrimSpace(arg), "hz"); arg != "" {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("tone frequency %q: %w", arg, err)
		}
		hz = v
	}
	if hz <= 0 || hz >= float64(format.SampleRate())/2 {
		return nil, fmt.Errorf("tone frequency %vHz outside (0, %d)", hz, format.SampleRate()/2)
	}
	return newPaced(newToneReader(format, hz), nil, format), nil
}
