package uplink

import (
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
)

// Source delivers captured PCM. Read fills p with whole samples and blocks
// for roughly one buffer duration. A read returning no data ends the
// current connection; an error wrapping ErrCaptureUnavailable ends the
// session.
type Source interface {
	Read(p []byte) (int, error)
	Close() error
}

// CaptureFunc opens a Source producing format in buffers of bufferDuration.
// It is called once per session. An error is fatal for that session.
type CaptureFunc func(format pcm.Format, bufferDuration time.Duration) (Source, error)
