// Package portaudio captures and plays raw PCM through the PortAudio C
// library.
//
// Requires portaudio installed via pkg-config (apt install portaudio19-dev,
// brew install portaudio).
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

static PaError pa_open_stream(void **stream,
                              const PaStreamParameters *inputParams,
                              const PaStreamParameters *outputParams,
                              double sampleRate,
                              unsigned long framesPerBuffer,
                              PaStreamFlags streamFlags) {
    return Pa_OpenStream((PaStream**)stream, inputParams, outputParams, sampleRate,
                         framesPerBuffer, streamFlags, NULL, NULL);
}

static PaError pa_start_stream(void *stream) {
    return Pa_StartStream((PaStream*)stream);
}

static PaError pa_stop_stream(void *stream) {
    return Pa_StopStream((PaStream*)stream);
}

static PaError pa_close_stream(void *stream) {
    return Pa_CloseStream((PaStream*)stream);
}

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}

static PaError pa_write_stream(void *stream, const void *buffer, unsigned long frames) {
    return Pa_WriteStream((PaStream*)stream, buffer, frames);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"unsafe"
)

// DefaultDevice selects the host's default input or output device.
const DefaultDevice = -1

var (
	initOnce sync.Once
	initErr  error

	// ErrStreamClosed is returned by reads and writes on a closed stream.
	ErrStreamClosed = errors.New("portaudio: stream closed")
)

func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return fmt.Errorf("portaudio: %s", C.GoString(C.Pa_GetErrorText(code)))
}

// Initialize initializes the PortAudio library.
// It is safe to call multiple times.
func Initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
	})
	return initErr
}

// Terminate terminates the PortAudio library.
func Terminate() error {
	return paError(C.Pa_Terminate())
}

// DeviceInfo contains information about an audio device.
type DeviceInfo struct {
	Index                   int     `json:"index"`
	Name                    string  `json:"name"`
	MaxInputChannels        int     `json:"max_input_channels"`
	MaxOutputChannels       int     `json:"max_output_channels"`
	DefaultLowInputLatency  float64 `json:"default_low_input_latency"`
	DefaultLowOutputLatency float64 `json:"default_low_output_latency"`
	DefaultSampleRate       float64 `json:"default_sample_rate"`
	IsDefaultInput          bool    `json:"is_default_input"`
	IsDefaultOutput         bool    `json:"is_default_output"`
}

// Devices returns a list of available audio devices.
func Devices() ([]DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, paError(C.PaError(count))
	}

	devices := make([]DeviceInfo, 0, count)
	for i := range count {
		d, err := deviceInfo(i)
		if err != nil {
			continue
		}
		devices = append(devices, *d)
	}
	return devices, nil
}

// Device returns the device at index, or the default input device for
// DefaultDevice.
func Device(index int) (*DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	if index == DefaultDevice {
		index = int(C.Pa_GetDefaultInputDevice())
		if index == int(C.paNoDevice) {
			return nil, errors.New("portaudio: no default input device")
		}
	}
	return deviceInfo(index)
}

func deviceInfo(index int) (*DeviceInfo, error) {
	if index < 0 || index >= int(C.Pa_GetDeviceCount()) {
		return nil, fmt.Errorf("portaudio: no device %d", index)
	}
	info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(index))
	if info == nil {
		return nil, fmt.Errorf("portaudio: no info for device %d", index)
	}
	return &DeviceInfo{
		Index:                   index,
		Name:                    C.GoString(info.name),
		MaxInputChannels:        int(info.maxInputChannels),
		MaxOutputChannels:       int(info.maxOutputChannels),
		DefaultLowInputLatency:  float64(info.defaultLowInputLatency),
		DefaultLowOutputLatency: float64(info.defaultLowOutputLatency),
		DefaultSampleRate:       float64(info.defaultSampleRate),
		IsDefaultInput:          index == int(C.Pa_GetDefaultInputDevice()),
		IsDefaultOutput:         index == int(C.Pa_GetDefaultOutputDevice()),
	}, nil
}

// PrintDevices writes a human readable device list to w.
func PrintDevices(w io.Writer) error {
	devices, err := Devices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		marker := ""
		if d.IsDefaultInput {
			marker += " [DEFAULT INPUT]"
		}
		if d.IsDefaultOutput {
			marker += " [DEFAULT OUTPUT]"
		}
		fmt.Fprintf(w, "%d: %s%s\n", d.Index, d.Name, marker)
		fmt.Fprintf(w, "   Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		fmt.Fprintf(w, "   Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
	}
	return nil
}

// stream is an open, started PortAudio stream with a C-side buffer of one
// period.
type stream struct {
	pa       unsafe.Pointer
	buf      unsafe.Pointer
	frames   int
	channels int
}

type direction int

const (
	input direction = iota
	output
)

func openStream(dir direction, device, channels, sampleRate, frames int) (*stream, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	idx := C.PaDeviceIndex(device)
	if device == DefaultDevice {
		if dir == input {
			idx = C.Pa_GetDefaultInputDevice()
		} else {
			idx = C.Pa_GetDefaultOutputDevice()
		}
		if idx == C.paNoDevice {
			return nil, errors.New("portaudio: no default device")
		}
	}
	info := C.Pa_GetDeviceInfo(idx)
	if info == nil {
		return nil, fmt.Errorf("portaudio: no device %d", device)
	}

	params := &C.PaStreamParameters{
		device:       idx,
		channelCount: C.int(channels),
		sampleFormat: C.paInt16,
	}
	var inParams, outParams *C.PaStreamParameters
	if dir == input {
		params.suggestedLatency = info.defaultLowInputLatency
		inParams = params
	} else {
		params.suggestedLatency = info.defaultLowOutputLatency
		outParams = params
	}

	var pa unsafe.Pointer
	err := paError(C.pa_open_stream(&pa, inParams, outParams,
		C.double(sampleRate), C.ulong(frames), C.paClipOff))
	if err != nil {
		return nil, err
	}
	if err := paError(C.pa_start_stream(pa)); err != nil {
		C.pa_close_stream(pa)
		return nil, err
	}
	return &stream{
		pa:       pa,
		buf:      C.malloc(C.size_t(frames * channels * 2)),
		frames:   frames,
		channels: channels,
	}, nil
}

func (s *stream) bytes() int {
	return s.frames * s.channels * 2
}

// read fills the C buffer with one period and copies it into p.
func (s *stream) read(p []byte) (int, error) {
	if err := paError(C.pa_read_stream(s.pa, s.buf, C.ulong(s.frames))); err != nil {
		return 0, err
	}
	return copy(p, unsafe.Slice((*byte)(s.buf), s.bytes())), nil
}

// write plays p, which must hold whole frames and at most one period.
func (s *stream) write(p []byte) error {
	frames := len(p) / (s.channels * 2)
	if frames == 0 {
		return nil
	}
	C.memcpy(s.buf, unsafe.Pointer(&p[0]), C.size_t(frames*s.channels*2))
	return paError(C.pa_write_stream(s.pa, s.buf, C.ulong(frames)))
}

func (s *stream) close() error {
	C.pa_stop_stream(s.pa)
	err := paError(C.pa_close_stream(s.pa))
	C.free(s.buf)
	return err
}
