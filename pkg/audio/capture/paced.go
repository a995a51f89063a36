package capture

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
)

// resyncAfter is how far a reader may fall behind its schedule before the
// schedule is restarted instead of bursting to catch up.
const resyncAfter = 200 * time.Millisecond

// pacedSource releases data from r no faster than real time for format.
type pacedSource struct {
	r      io.Reader
	closer io.Closer
	format pcm.Format

	next   time.Time
	closed atomic.Bool
}

func newPaced(r io.Reader, closer io.Closer, format pcm.Format) *pacedSource {
	return &pacedSource{r: r, closer: closer, format: format}
}

func (s *pacedSource) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, io.EOF
	}
	fb := s.format.FrameBytes()
	p = p[:len(p)/fb*fb]
	if len(p) == 0 {
		return 0, io.ErrShortBuffer
	}

	now := time.Now()
	if s.next.IsZero() || now.Sub(s.next) > resyncAfter {
		s.next = now
	}
	if d := time.Until(s.next); d > 0 {
		time.Sleep(d)
	}
	s.next = s.next.Add(s.format.Duration(int64(len(p))))

	n, err := io.ReadFull(s.r, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n / fb * fb, err
}

func (s *pacedSource) Close() error {
	if s.closed.Swap(true) || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
