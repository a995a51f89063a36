package uplink

import (
	"encoding/binary"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
)

func testOptions(capture CaptureFunc) Options {
	return Options{
		Capture:           capture,
		ConnectTimeout:    300 * time.Millisecond,
		RetryBackoff:      50 * time.Millisecond,
		TelemetryInterval: 100 * time.Millisecond,
	}
}

func TestEngineInitialState(t *testing.T) {
	e := New(Options{})
	defer e.Close()

	if got := e.State(); got != Disconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
	select {
	case <-e.Done():
	default:
		t.Error("Done() should be closed when idle")
	}
	// Stop with nothing running is a no-op.
	e.Stop()
	if got := e.State(); got != Disconnected {
		t.Errorf("State() after idle Stop = %v", got)
	}
}

func TestEngineRetriesWithoutListener(t *testing.T) {
	capture, src := constCapture(100)
	e := New(testOptions(capture))
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	if !e.Start(StreamConfig{Host: "127.0.0.1", Port: closedPort(t), InitialGain: 1}) {
		t.Fatal("Start() = false")
	}
	ev := events.waitFor(t, 3*time.Second, func(ev Telemetry) bool {
		return ev.Status == Connecting && ev.Attempts == 3
	})
	if ev.SessionID == "" {
		t.Error("event without session id")
	}
	if got := e.State(); got != Connecting {
		t.Errorf("State() = %v, want connecting", got)
	}

	start := time.Now()
	e.Stop()
	waitDone(t, e, 600*time.Millisecond)
	if d := time.Since(start); d > 600*time.Millisecond {
		t.Errorf("stop took %v", d)
	}
	if got := e.State(); got != Disconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
	if !src.closed.Load() {
		t.Error("capture source was not closed")
	}

	last := events.waitFor(t, time.Second, func(ev Telemetry) bool { return ev.Status == Disconnected })
	if last.Error != "" {
		t.Errorf("stopped session reported error %q", last.Error)
	}
}

// connectingEvents returns the Connecting events that raised the attempt
// count, in order.
func connectingEvents(events []Telemetry) []Telemetry {
	var out []Telemetry
	for _, ev := range events {
		if ev.Status != Connecting {
			continue
		}
		if len(out) > 0 && out[len(out)-1].Attempts == ev.Attempts {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func TestEngineAttemptsCountUpWithoutGaps(t *testing.T) {
	capture, _ := constCapture(1)
	e := New(testOptions(capture))
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: closedPort(t), InitialGain: 1})
	events.waitFor(t, 3*time.Second, func(ev Telemetry) bool {
		return ev.Status == Connecting && ev.Attempts == 5
	})
	e.Stop()
	waitDone(t, e, time.Second)

	got := connectingEvents(events.snapshot())
	if len(got) < 6 {
		t.Fatalf("got %d connecting events, want at least 6", len(got))
	}
	for i, ev := range got {
		if ev.Attempts != uint32(i) {
			t.Fatalf("connecting event %d has Attempts %d", i, ev.Attempts)
		}
	}
}

func TestEngineDefaultBackoffSpacing(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for several default backoffs")
	}
	capture, _ := constCapture(1)
	e := New(Options{Capture: capture})
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: closedPort(t), InitialGain: 1})
	events.waitFor(t, 4*time.Second, func(ev Telemetry) bool {
		return ev.Status == Connecting && ev.Attempts == 4
	})

	// A refused dial returns at once, so retries follow each other at the
	// backoff interval.
	got := connectingEvents(events.snapshot())
	for i := 2; i < len(got); i++ {
		gap := got[i].Time.Sub(got[i-1].Time)
		if gap < DefaultRetryBackoff-50*time.Millisecond || gap > DefaultRetryBackoff+400*time.Millisecond {
			t.Errorf("attempt %d followed attempt %d after %v, want about %v",
				got[i].Attempts, got[i-1].Attempts, gap, DefaultRetryBackoff)
		}
	}
}

func TestEngineTerminalEventsCarryNoCounters(t *testing.T) {
	port, conns := listen(t)
	capture, _ := constCapture(2)
	e := New(testOptions(capture))
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1})
	first := accept(t, conns, 2*time.Second)
	readSamples(t, first, 16)
	first.Close()
	second := accept(t, conns, 3*time.Second)
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := second.Read(buf); err != nil {
				return
			}
		}
	}()
	events.waitFor(t, 2*time.Second, func(ev Telemetry) bool {
		return ev.Status == Connected && ev.Kbps > 0 && ev.Attempts == 1
	})
	e.Stop()
	waitDone(t, e, time.Second)

	var terminal int
	for _, ev := range events.snapshot() {
		if ev.Status != Stopping && ev.Status != Disconnected {
			continue
		}
		terminal++
		if ev.Attempts != 0 || ev.TxBytes != 0 || ev.Kbps != 0 {
			t.Errorf("%v event = %+v, want zero counters", ev.Status, ev)
		}
		if ev.SessionTxBytes == 0 {
			t.Errorf("%v event lost the session total", ev.Status)
		}
	}
	if terminal < 2 {
		t.Errorf("got %d terminal events, want stopping and disconnected", terminal)
	}
}

func TestEngineStreamsWithGain(t *testing.T) {
	port, conns := listen(t)
	capture, _ := constCapture(1000)
	e := New(testOptions(capture))
	defer e.Close()

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 0.5})
	c := accept(t, conns, 2*time.Second)

	frame := int(Format.BytesInDuration(DefaultBufferDuration) / 2)
	for i, s := range readSamples(t, c, frame) {
		if s != 500 {
			t.Fatalf("sample %d = %d, want 500", i, s)
		}
	}
	if got := e.State(); got != Connected {
		t.Errorf("State() = %v, want connected", got)
	}

	e.SetMuted(true)
	deadline := time.Now().Add(2 * time.Second)
	for {
		samples := readSamples(t, c, frame)
		zero := true
		for _, s := range samples {
			if s != 0 {
				zero = false
				break
			}
		}
		if zero {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("muted stream never went silent")
		}
	}

	e.SetMuted(false)
	e.SetGain(1)
	deadline = time.Now().Add(2 * time.Second)
	for {
		if readSamples(t, c, frame)[0] == 1000 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("unity gain never reached the stream")
		}
	}
}

func TestEngineBuffersNeverMixParameters(t *testing.T) {
	port, conns := listen(t)
	capture, _ := constCapture(1000)
	e := New(testOptions(capture))
	defer e.Close()

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1})
	c := accept(t, conns, 2*time.Second)

	stop := make(chan struct{})
	go func() {
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			e.SetGain(float32(i%2) * 0.5)
			time.Sleep(time.Millisecond)
		}
	}()
	defer close(stop)

	frame := int(Format.BytesInDuration(DefaultBufferDuration) / 2)
	for range 20 {
		samples := readSamples(t, c, frame)
		for i, s := range samples {
			if s != samples[0] {
				t.Fatalf("buffer mixes samples %d and %d at %d", samples[0], s, i)
			}
		}
		if samples[0] != 0 && samples[0] != 500 && samples[0] != 1000 {
			t.Fatalf("unexpected sample %d", samples[0])
		}
	}
}

func TestEngineStartIsIdempotent(t *testing.T) {
	port, conns := listen(t)
	capture, _ := constCapture(1)
	e := New(testOptions(capture))
	defer e.Close()

	cfg := StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1}
	if !e.Start(cfg) {
		t.Fatal("first Start() = false")
	}
	if e.Start(cfg) {
		t.Error("second Start() = true")
	}
	accept(t, conns, 2*time.Second)
	select {
	case <-conns:
		t.Fatal("second connection opened")
	case <-time.After(200 * time.Millisecond):
	}

	e.Stop()
	waitDone(t, e, time.Second)
	if got := e.State(); got != Disconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}

	// A new session may start once the previous one has ended.
	if !e.Start(cfg) {
		t.Fatal("Start() after stop = false")
	}
	accept(t, conns, 2*time.Second)
}

func TestEngineStopWhileConnected(t *testing.T) {
	port, conns := listen(t)
	capture, _ := constCapture(7)
	e := New(testOptions(capture))
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1})
	accept(t, conns, 2*time.Second)
	events.waitFor(t, 2*time.Second, func(ev Telemetry) bool { return ev.Status == Connected })

	start := time.Now()
	e.Stop()
	if got := e.State(); got != Stopping && got != Disconnected {
		t.Errorf("State() right after Stop = %v", got)
	}
	waitDone(t, e, 600*time.Millisecond)
	if d := time.Since(start); d > 600*time.Millisecond {
		t.Errorf("stop took %v", d)
	}

	events.waitFor(t, time.Second, func(ev Telemetry) bool { return ev.Status == Disconnected })
	got := statuses(events.snapshot())
	want := []SessionState{Connecting, Connected, Stopping, Disconnected}
	if len(got) < len(want) {
		t.Fatalf("statuses = %v, want suffix %v", got, want)
	}
	tail := got[len(got)-2:]
	if tail[0] != Stopping || tail[1] != Disconnected {
		t.Errorf("statuses = %v, want to end with stopping, disconnected", got)
	}
	if err := e.Err(); err != nil {
		t.Errorf("Err() after Stop = %v", err)
	}
}

func TestEngineReconnectsAfterPeerClose(t *testing.T) {
	port, conns := listen(t)
	capture, _ := constCapture(3)
	e := New(testOptions(capture))
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1})
	first := accept(t, conns, 2*time.Second)
	readSamples(t, first, 16)
	first.Close()

	events.waitFor(t, 3*time.Second, func(ev Telemetry) bool {
		return ev.Status == Connecting && ev.Attempts == 1
	})
	second := accept(t, conns, 3*time.Second)
	readSamples(t, second, 16)
	events.waitFor(t, 2*time.Second, func(ev Telemetry) bool {
		return ev.Status == Connected && ev.Attempts == 1
	})
}

func TestEngineReconnectsAfterCaptureEnds(t *testing.T) {
	port, conns := listen(t)
	var opens atomic.Int32
	src := &flakySource{}
	capture := func(pcm.Format, time.Duration) (Source, error) {
		opens.Add(1)
		return src, nil
	}
	e := New(testOptions(capture))
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1})
	accept(t, conns, 2*time.Second)
	accept(t, conns, 3*time.Second)
	events.waitFor(t, time.Second, func(ev Telemetry) bool {
		return ev.Status == Connecting && ev.Attempts == 1
	})
	e.Stop()
	waitDone(t, e, time.Second)
	if n := opens.Load(); n != 1 {
		t.Errorf("capture opened %d times, want 1", n)
	}
}

// flakySource returns end-of-stream on every other read.
type flakySource struct {
	n int
}

func (f *flakySource) Read(p []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	f.n++
	if f.n%2 == 0 {
		return 0, nil
	}
	return len(p), nil
}

func (f *flakySource) Close() error { return nil }

func TestEngineCaptureUnavailable(t *testing.T) {
	port, conns := listen(t)
	capture := func(pcm.Format, time.Duration) (Source, error) {
		return nil, errBoom
	}
	e := New(testOptions(capture))
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1})
	waitDone(t, e, time.Second)

	if got := e.State(); got != Disconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
	last := events.waitFor(t, time.Second, func(ev Telemetry) bool { return ev.Status == Disconnected })
	if !strings.Contains(last.Error, "capture unavailable") || !strings.Contains(last.Error, "boom") {
		t.Errorf("Error = %q", last.Error)
	}
	if last.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", last.Attempts)
	}
	if err := e.Err(); !errors.Is(err, ErrCaptureUnavailable) {
		t.Errorf("Err() = %v, want ErrCaptureUnavailable", err)
	}
	select {
	case <-conns:
		t.Error("connected despite capture failure")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEngineNilCapture(t *testing.T) {
	e := New(Options{})
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: 1, InitialGain: 1})
	waitDone(t, e, time.Second)
	last := events.waitFor(t, time.Second, func(ev Telemetry) bool { return ev.Status == Disconnected })
	if !strings.Contains(last.Error, ErrCaptureUnavailable.Error()) {
		t.Errorf("Error = %q", last.Error)
	}
}

func TestEngineRuntimeCaptureLossIsFatal(t *testing.T) {
	port, conns := listen(t)
	capture := func(pcm.Format, time.Duration) (Source, error) {
		return &goneSource{}, nil
	}
	e := New(testOptions(capture))
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1})
	accept(t, conns, 2*time.Second)
	waitDone(t, e, 2*time.Second)
	last := events.waitFor(t, time.Second, func(ev Telemetry) bool { return ev.Status == Disconnected })
	if last.Error == "" {
		t.Error("expected an error on the final event")
	}
}

type goneSource struct{}

func (goneSource) Read([]byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, errors.Join(ErrCaptureUnavailable, errBoom)
}

func (goneSource) Close() error { return nil }

func TestEngineThroughputTelemetry(t *testing.T) {
	port, conns := listen(t)
	capture, _ := constCapture(1)
	e := New(testOptions(capture))
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 0.25, InitialMuted: true})
	c := accept(t, conns, 2*time.Second)
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := c.Read(buf); err != nil {
				return
			}
		}
	}()

	ev := events.waitFor(t, 2*time.Second, func(ev Telemetry) bool { return ev.Kbps > 0 })
	if ev.Status != Connected {
		t.Errorf("Status = %v", ev.Status)
	}
	if ev.TxBytes == 0 || ev.SessionTxBytes < ev.TxBytes {
		t.Errorf("TxBytes = %d, SessionTxBytes = %d", ev.TxBytes, ev.SessionTxBytes)
	}
	if ev.Gain != 0.25 || !ev.Muted {
		t.Errorf("Gain = %v, Muted = %v", ev.Gain, ev.Muted)
	}
	// 10ms of 48kHz stereo per buffer is at most 1536 kbps.
	if ev.Kbps > 1600 {
		t.Errorf("Kbps = %d", ev.Kbps)
	}
}

func TestEngineSetGainClamps(t *testing.T) {
	e := New(Options{})
	defer e.Close()
	events := newCollector()
	e.Subscribe(events)

	if got := e.SetGain(2); got != 1 {
		t.Errorf("SetGain(2) = %v", got)
	}
	if got := e.SetGain(-1); got != 0 {
		t.Errorf("SetGain(-1) = %v", got)
	}
	if got := e.Gain(); got != 0 {
		t.Errorf("Gain() = %v", got)
	}
	e.SetMuted(true)
	ev := events.waitFor(t, time.Second, func(ev Telemetry) bool { return ev.Muted })
	if ev.Status != Disconnected || ev.Gain != 0 {
		t.Errorf("event = %+v", ev)
	}
}

func TestEngineStartSeedsParameters(t *testing.T) {
	port, conns := listen(t)
	capture, _ := constCapture(1)
	e := New(testOptions(capture))
	defer e.Close()

	e.SetGain(0.1)
	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 0.8, InitialMuted: true})
	accept(t, conns, 2*time.Second)
	if got := e.Gain(); got != 0.8 {
		t.Errorf("Gain() = %v, want 0.8", got)
	}
	if !e.Muted() {
		t.Error("Muted() = false")
	}
	snap := e.Snapshot()
	if snap.SessionID == "" || snap.Endpoint == "" {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestEngineClose(t *testing.T) {
	port, conns := listen(t)
	capture, _ := constCapture(1)
	e := New(testOptions(capture))

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1})
	accept(t, conns, 2*time.Second)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := e.State(); got != Disconnected {
		t.Errorf("State() = %v", got)
	}
	if e.Start(StreamConfig{Host: "127.0.0.1", Port: port}) {
		t.Error("Start() after Close = true")
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// slowCloseSource blocks in Close until released, holding the session in
// Stopping.
type slowCloseSource struct {
	constSource
	release chan struct{}
}

func (s *slowCloseSource) Close() error {
	<-s.release
	return s.constSource.Close()
}

func TestEngineStartWhileStopping(t *testing.T) {
	port, conns := listen(t)
	src := &slowCloseSource{constSource: constSource{interval: time.Millisecond}, release: make(chan struct{})}
	capture := func(pcm.Format, time.Duration) (Source, error) { return src, nil }
	e := New(testOptions(capture))
	defer e.Close()

	cfg := StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1}
	e.Start(cfg)
	accept(t, conns, 2*time.Second)
	e.Stop()

	if got := e.State(); got != Stopping {
		t.Fatalf("State() = %v, want stopping", got)
	}
	if e.Start(cfg) {
		t.Error("Start() while stopping = true")
	}
	close(src.release)
	waitDone(t, e, time.Second)
	if got := e.State(); got != Disconnected {
		t.Errorf("State() = %v", got)
	}
}

// oddSource returns a stream of one repeated sample in reads of three bytes,
// so every other read ends in the middle of a sample.
type oddSource struct {
	sample int16
	off    int
}

func (o *oddSource) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(o.sample))
	n := min(3, len(p))
	for i := range n {
		p[i] = b[o.off%2]
		o.off++
	}
	return n, nil
}

func (o *oddSource) Close() error { return nil }

type warnLogger struct {
	defaultLogger
	warns atomic.Int32
}

func (l *warnLogger) WarnPrintf(format string, args ...any) {
	l.warns.Add(1)
	l.defaultLogger.WarnPrintf(format, args...)
}

func TestEngineOddCaptureReadsStayAligned(t *testing.T) {
	port, conns := listen(t)
	const sample = 0x0400
	capture := func(pcm.Format, time.Duration) (Source, error) {
		return &oddSource{sample: sample}, nil
	}
	logger := &warnLogger{}
	opts := testOptions(capture)
	opts.Logger = logger
	e := New(opts)
	defer e.Close()

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 0.5})
	c := accept(t, conns, 2*time.Second)
	want := pcm.ScaleSample(sample, 0.5)
	for i, got := range readSamples(t, c, 200) {
		if got != want {
			t.Fatalf("sample %d = %#04x, want %#04x", i, uint16(got), uint16(want))
		}
	}
	e.Stop()
	waitDone(t, e, time.Second)

	// Only the first split read is a warning.
	if n := logger.warns.Load(); n != 1 {
		t.Errorf("logged %d warnings, want 1 for the split reads", n)
	}
}
