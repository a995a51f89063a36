package resampler

import "github.com/haivivi/pcmlink/pkg/audio/pcm"

// Format describes 16-bit signed little-endian PCM.
type Format struct {
	SampleRate int
	Stereo     bool
}

// FromPCM returns the Format for a pcm.Format.
func FromPCM(f pcm.Format) Format {
	return Format{SampleRate: f.SampleRate(), Stereo: f.Channels() == 2}
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// frameBytes is the size of one sample across all channels.
func (f Format) frameBytes() int {
	return f.channels() * 2
}
