package pcm

import (
	"fmt"
	"strings"
	"time"
)

const (
	// L16Mono16K represents audio/L16; rate=16000; channels=1
	L16Mono16K Format = iota
	// L16Mono24K represents audio/L16; rate=24000; channels=1
	L16Mono24K
	// L16Mono48K represents audio/L16; rate=48000; channels=1
	L16Mono48K
	// L16Stereo48K represents audio/L16; rate=48000; channels=2 (interleaved)
	L16Stereo48K
)

// Format represents an audio format configuration.
type Format int

// SampleRate returns the sample rate in Hz for this format.
func (f Format) SampleRate() int {
	switch f {
	case L16Mono16K:
		return 16000
	case L16Mono24K:
		return 24000
	case L16Mono48K, L16Stereo48K:
		return 48000
	}
	panic("pcm: invalid audio type")
}

// Channels returns the number of audio channels for this format.
func (f Format) Channels() int {
	switch f {
	case L16Mono16K, L16Mono24K, L16Mono48K:
		return 1
	case L16Stereo48K:
		return 2
	}
	panic("pcm: invalid audio type")
}

// Depth returns the bit depth for this format.
func (f Format) Depth() int {
	switch f {
	case L16Mono16K, L16Mono24K, L16Mono48K, L16Stereo48K:
		return 16
	}
	panic("pcm: invalid audio type")
}

// FrameBytes returns the size of one frame (one sample for every channel).
func (f Format) FrameBytes() int {
	return f.Channels() * f.Depth() / 8
}

// FramesInDuration returns the number of frames in the given duration.
func (f Format) FramesInDuration(d time.Duration) int64 {
	return int64(time.Duration(f.SampleRate()) * d / time.Second)
}

// BytesInDuration returns the number of bytes in the given duration.
func (f Format) BytesInDuration(d time.Duration) int64 {
	return f.FramesInDuration(d) * int64(f.FrameBytes())
}

// Duration returns the duration of the given number of bytes.
func (f Format) Duration(bytes int64) time.Duration {
	frames := bytes / int64(f.FrameBytes())
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate())
}

// BitsRate returns the bit rate of the audio data.
func (f Format) BitsRate() int {
	return f.SampleRate() * f.Channels() * f.Depth()
}

// BytesRate returns the byte rate of the audio data.
func (f Format) BytesRate() int {
	return f.BitsRate() / 8
}

// String returns a human-readable string representation of the format.
func (f Format) String() string {
	switch f {
	case L16Mono16K:
		return "audio/L16; rate=16000; channels=1"
	case L16Mono24K:
		return "audio/L16; rate=24000; channels=1"
	case L16Mono48K:
		return "audio/L16; rate=48000; channels=1"
	case L16Stereo48K:
		return "audio/L16; rate=48000; channels=2"
	}
	panic("pcm: invalid audio type")
}

// ParseFormat parses a short format name such as "s16le-48k-stereo" or the
// MIME-like form returned by String.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s16le-16k-mono", "audio/l16; rate=16000; channels=1":
		return L16Mono16K, nil
	case "s16le-24k-mono", "audio/l16; rate=24000; channels=1":
		return L16Mono24K, nil
	case "s16le-48k-mono", "audio/l16; rate=48000; channels=1":
		return L16Mono48K, nil
	case "", "s16le-48k-stereo", "audio/l16; rate=48000; channels=2":
		return L16Stereo48K, nil
	}
	return 0, fmt.Errorf("pcm: unknown format %q", s)
}
