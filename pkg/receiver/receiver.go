// Package receiver implements the listening end of an uplink: a TCP server
// that accepts raw PCM streams and hands the audio to a sink.
package receiver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
)

// ErrAlreadyRunning is returned by Serve when called twice.
var ErrAlreadyRunning = errors.New("receiver: already running")

// DefaultReportInterval is how often per-stream throughput is logged.
const DefaultReportInterval = 2 * time.Second

// Receiver accepts PCM streams. Each connection is one stream; the bytes
// carry no framing and are passed to the sink in whole frames.
type Receiver struct {
	// Format of the incoming audio. Default is pcm.L16Stereo48K.
	Format pcm.Format

	// Sink opens the destination for a new stream. If nil, audio is
	// discarded after being counted.
	Sink func(remote net.Addr) (io.WriteCloser, error)

	// Exclusive rejects a new connection while another stream is active.
	Exclusive bool

	// IdleTimeout closes a stream that delivers nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// OnStream is called with the stats of each finished stream.
	OnStream func(StreamStats)

	ReportInterval time.Duration

	running atomic.Bool
	bytes   atomic.Int64
	streams atomic.Int64
	peak    atomic.Int32

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// StreamStats summarises one finished stream.
type StreamStats struct {
	Remote   string
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Stats is a point-in-time view of the receiver.
type Stats struct {
	Streams int64 `json:"streams"`
	Active  int   `json:"active"`
	Bytes   int64 `json:"bytes"`
	// Peak is the largest absolute sample in the most recent buffer.
	Peak int16 `json:"peak"`
}

// Serve accepts connections from ln until Close is called.
func (r *Receiver) Serve(ln net.Listener) error {
	if r.running.Swap(true) {
		return ErrAlreadyRunning
	}
	r.mu.Lock()
	r.ln = ln
	r.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if r.running.Load() {
				return err
			}
			return nil
		}
		if !r.track(conn) {
			slog.Warn("receiver: rejecting stream, another is active", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handle(conn)
		}()
	}
}

// ServeConn handles a single stream and returns when it ends.
func (r *Receiver) ServeConn(conn net.Conn) {
	if !r.track(conn) {
		conn.Close()
		return
	}
	r.handle(conn)
}

// Stats returns the current counters.
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	active := len(r.conns)
	r.mu.Unlock()
	return Stats{
		Streams: r.streams.Load(),
		Active:  active,
		Bytes:   r.bytes.Load(),
		Peak:    int16(r.peak.Load()),
	}
}

// Close stops accepting, closes active streams and waits for them to end.
func (r *Receiver) Close() error {
	r.running.Store(false)
	r.mu.Lock()
	var err error
	if r.ln != nil {
		err = r.ln.Close()
	}
	for c := range r.conns {
		c.Close()
	}
	r.mu.Unlock()
	r.wg.Wait()
	return err
}

func (r *Receiver) track(conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Exclusive && len(r.conns) > 0 {
		return false
	}
	if r.conns == nil {
		r.conns = make(map[net.Conn]struct{})
	}
	r.conns[conn] = struct{}{}
	return true
}

func (r *Receiver) untrack(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn)
}

func (r *Receiver) handle(conn net.Conn) {
	defer r.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr()
	start := time.Now()
	r.streams.Add(1)
	slog.Info("receiver: stream connected", "remote", remote)

	var sink io.WriteCloser = nopCloser{io.Discard}
	if r.Sink != nil {
		s, err := r.Sink(remote)
		if err != nil {
			slog.Error("receiver: open sink", "remote", remote, "error", err)
			return
		}
		sink = s
	}
	defer sink.Close()

	n, err := r.copy(sink, conn)
	stats := StreamStats{Remote: remote.String(), Bytes: n, Duration: time.Since(start), Err: err}
	slog.Info("receiver: stream ended", "remote", remote, "bytes", n, "duration", stats.Duration.Round(time.Millisecond), "error", err)
	if r.OnStream != nil {
		r.OnStream(stats)
	}
}

// copy moves whole frames from conn to sink until the peer closes. A clean
// close returns a nil error.
func (r *Receiver) copy(sink io.Writer, conn net.Conn) (int64, error) {
	format := r.Format
	if format == 0 {
		format = pcm.L16Stereo48K
	}
	interval := r.ReportInterval
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	fb := format.FrameBytes()
	buf := make([]byte, format.BytesInDuration(10*time.Millisecond))

	var (
		total, window int64
		pending       int
		windowStart   = time.Now()
	)
	for {
		if r.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(r.IdleTimeout))
		}
		n, err := conn.Read(buf[pending:])
		pending += n
		if whole := pending / fb * fb; whole > 0 {
			r.peak.Store(int32(pcm.Peak(buf[:whole])))
			if _, werr := sink.Write(buf[:whole]); werr != nil {
				return total, fmt.Errorf("receiver: sink: %w", werr)
			}
			total += int64(whole)
			window += int64(whole)
			r.bytes.Add(int64(whole))
			pending = copy(buf, buf[whole:pending])
		}
		if d := time.Since(windowStart); d >= interval {
			slog.Debug("receiver: throughput", "remote", conn.RemoteAddr(), "bytes", window, "kbps", window*8/max(d.Milliseconds(), 1))
			window = 0
			windowStart = time.Now()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return total, nil
			}
			return total, err
		}
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
