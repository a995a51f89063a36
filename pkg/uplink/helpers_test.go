package uplink

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
)

// constSource produces buffers filled with a single sample value, paced at
// the buffer duration.
type constSource struct {
	sample   int16
	interval time.Duration
	closed   atomic.Bool
	reads    atomic.Int64
}

func (s *constSource) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, io.EOF
	}
	time.Sleep(s.interval)
	for i := 0; i+1 < len(p); i += 2 {
		binary.LittleEndian.PutUint16(p[i:], uint16(s.sample))
	}
	s.reads.Add(1)
	return len(p) &^ 1, nil
}

func (s *constSource) Close() error {
	s.closed.Store(true)
	return nil
}

func constCapture(sample int16) (CaptureFunc, *constSource) {
	src := &constSource{sample: sample}
	return func(_ pcm.Format, d time.Duration) (Source, error) {
		src.interval = d
		return src, nil
	}, src
}

// collector records every telemetry event it observes.
type collector struct {
	mu     sync.Mutex
	events []Telemetry
	notify chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 1)}
}

func (c *collector) Observe(t Telemetry) {
	c.mu.Lock()
	c.events = append(c.events, t)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *collector) snapshot() []Telemetry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Telemetry(nil), c.events...)
}

func (c *collector) waitFor(t *testing.T, timeout time.Duration, match func(Telemetry) bool) Telemetry {
	t.Helper()
	deadline := time.After(timeout)
	seen := 0
	for {
		events := c.snapshot()
		for _, ev := range events[seen:] {
			if match(ev) {
				return ev
			}
		}
		seen = len(events)
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("no matching event within %v; got %d events", timeout, len(events))
			return Telemetry{}
		}
	}
}

func statuses(events []Telemetry) []SessionState {
	out := make([]SessionState, 0, len(events))
	for _, ev := range events {
		if len(out) == 0 || out[len(out)-1] != ev.Status {
			out = append(out, ev.Status)
		}
	}
	return out
}

// listen starts a loopback TCP listener and hands accepted connections to
// the returned channel.
func listen(t *testing.T) (uint16, <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 8)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- c
		}
	}()
	t.Cleanup(func() {
		for {
			select {
			case c := <-conns:
				c.Close()
			default:
				return
			}
		}
	})
	return uint16(ln.Addr().(*net.TCPAddr).Port), conns
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()
	return port
}

func accept(t *testing.T, conns <-chan net.Conn, timeout time.Duration) net.Conn {
	t.Helper()
	select {
	case c := <-conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(timeout):
		t.Fatalf("no connection within %v", timeout)
		return nil
	}
}

func readSamples(t *testing.T, c net.Conn, n int) []int16 {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	b := make([]byte, n*2)
	if _, err := io.ReadFull(c, b); err != nil {
		t.Fatalf("read: %v", err)
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func waitDone(t *testing.T, e *Engine, timeout time.Duration) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(timeout):
		t.Fatalf("session did not end within %v (state %v)", timeout, e.State())
	}
}

var errBoom = errors.New("boom")
