// Package capture opens the audio sources an uplink session streams from.
//
// A source is named by a spec string "<scheme>[:<arg>]":
//
//	silence             digital silence
//	tone[:<hz>]         a sine tone, 440Hz by default
//	file:<path>         raw PCM or a 16-bit WAV file, played once
//	loop:<path>         the same, restarted at end of file
//
// Further schemes, such as a sound card, are added with Register. Every
// source delivers buffers at real-time pace, so a file or generator behaves
// like a live input. Open failures wrap uplink.ErrCaptureUnavailable.
package capture

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
	"github.com/haivivi/pcmlink/pkg/uplink"
)

// OpenFunc opens a source for the argument part of a spec.
type OpenFunc func(arg string, format pcm.Format, bufferDuration time.Duration) (uplink.Source, error)

var (
	mu      sync.RWMutex
	openers = map[string]OpenFunc{
		"silence": openSilence,
		"tone":    openTone,
		"file":    openFile,
		"loop":    openLoop,
	}
)

// Register makes a scheme available to Open. Registering a scheme twice
// replaces the earlier opener.
func Register(scheme string, fn OpenFunc) {
	mu.Lock()
	defer mu.Unlock()
	openers[scheme] = fn
}

// Schemes returns the registered scheme names in sorted order.
func Schemes() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(openers))
	for s := range openers {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// ParseSpec splits a spec into scheme and argument.
func ParseSpec(spec string) (scheme, arg string) {
	spec = strings.TrimSpace(spec)
	scheme, arg, _ = strings.Cut(spec, ":")
	return strings.ToLower(scheme), arg
}

// Open opens the source named by spec.
func Open(spec string, format pcm.Format, bufferDuration time.Duration) (uplink.Source, error) {
	scheme, arg := ParseSpec(spec)
	mu.RLock()
	fn, ok := openers[scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown source %q (have %s)", uplink.ErrCaptureUnavailable, spec, strings.Join(Schemes(), ", "))
	}
	src, err := fn(arg, format, bufferDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", uplink.ErrCaptureUnavailable, spec, err)
	}
	return src, nil
}

// Opener returns an uplink.CaptureFunc that opens spec.
func Opener(spec string) uplink.CaptureFunc {
	return func(format pcm.Format, bufferDuration time.Duration) (uplink.Source, error) {
		return Open(spec, format, bufferDuration)
	}
}
