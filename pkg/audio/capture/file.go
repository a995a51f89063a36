package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
	"github.com/haivivi/pcmlink/pkg/audio/resampler"
	"github.com/haivivi/pcmlink/pkg/uplink"
)

func openFile(arg string, format pcm.Format, _ time.Duration) (uplink.Source, error) {
	return openPCMFile(arg, format, false)
}

func openLoop(arg string, format pcm.Format, _ time.Duration) (uplink.Source, error) {
	return openPCMFile(arg, format, true)
}

// openPCMFile opens a WAV file, converting it to format when needed, or a
// headerless file assumed to already be in format.
func openPCMFile(path string, format pcm.Format, loop bool) (uplink.Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("missing file path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	srcFmt := resampler.FromPCM(format)
	off, size := int64(0), st.Size()
	info, err := parseWAV(f)
	switch {
	case err == nil:
		srcFmt = resampler.Format{SampleRate: info.SampleRate, Stereo: info.Channels == 2}
		off, size = info.DataOffset, min(info.DataSize, st.Size()-info.DataOffset)
	case errors.Is(err, errNotWAV):
	default:
		f.Close()
		return nil, err
	}
	if size <= 0 {
		f.Close()
		return nil, fmt.Errorf("%s: no audio data", path)
	}

	var r io.Reader = io.NewSectionReader(f, off, size)
	if loop {
		r = &loopReader{section: r.(*io.SectionReader)}
	}
	if dst := resampler.FromPCM(format); srcFmt != dst {
		rs, err := resampler.New(r, srcFmt, dst)
		if err != nil {
			f.Close()
			return nil, err
		}
		r = rs
	}
	if !loop {
		r = &exhaustReader{r: r, path: path}
	}
	return newPaced(r, f, format), nil
}

// loopReader restarts a section at its end.
type loopReader struct {
	section *io.SectionReader
}

func (l *loopReader) Read(p []byte) (int, error) {
	n, err := l.section.Read(p)
	if err == io.EOF {
		if _, serr := l.section.Seek(0, io.SeekStart); serr != nil {
			return n, serr
		}
		err = nil
	}
	return n, err
}

// exhaustReader turns the end of a file into a fatal capture error, so a
// session ends once the whole file has been sent.
type exhaustReader struct {
	r    io.Reader
	path string
}

func (e *exhaustReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
		err = fmt.Errorf("%w: %s: end of file", uplink.ErrCaptureUnavailable, e.path)
	}
	return n, err
}
