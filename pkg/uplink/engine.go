package uplink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/haivivi/pcmlink/pkg/audio/pcm"
)

// Options configures an Engine. Zero durations take the package defaults.
type Options struct {
	// Capture opens the audio source for each session. A nil Capture makes
	// every session fail with ErrCaptureUnavailable.
	Capture CaptureFunc

	BufferDuration    time.Duration
	ConnectTimeout    time.Duration
	RetryBackoff      time.Duration
	TelemetryInterval time.Duration
	WriteTimeout      time.Duration

	// QueueSize is the telemetry queue capacity.
	QueueSize int

	Logger Logger
}

func (o *Options) setDefaults() {
	if o.BufferDuration <= 0 {
		o.BufferDuration = DefaultBufferDuration
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.TelemetryInterval <= 0 {
		o.TelemetryInterval = DefaultTelemetryInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger()
	}
}

// Engine streams captured audio to a TCP receiver, reconnecting until it is
// stopped. At most one session runs at a time. Control methods may be called
// from any goroutine and never wait for network or audio I/O.
type Engine struct {
	opts   Options
	logger Logger
	pub    *Publisher

	gain  pcm.AtomicGain
	muted atomic.Bool

	mu     sync.Mutex
	state  SessionState
	sess   *session
	err    error
	closed bool
}

type session struct {
	id      string
	cfg     StreamConfig
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	done    chan struct{}

	stopRequested atomic.Bool
	attempts      atomic.Uint32
	txBytes       atomic.Uint64

	// pending holds the first byte of a sample split across capture reads
	// while split is set. Worker only.
	pending     byte
	split       bool
	splitWarned bool
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// New creates an idle engine in the Disconnected state.
func New(opts Options) *Engine {
	opts.setDefaults()
	e := &Engine{
		opts:   opts,
		logger: opts.Logger,
		pub:    NewPublisher(opts.QueueSize, opts.Logger),
	}
	e.gain.Store(1)
	return e
}

// Start begins a session with cfg. It returns false without doing anything
// if a session is already running, including one that is still stopping.
func (e *Engine) Start(cfg StreamConfig) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.sess != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:      uuid.NewString(),
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	e.gain.Store(cfg.InitialGain)
	e.muted.Store(cfg.InitialMuted)
	e.sess = s
	e.err = nil
	e.logger.InfoPrintf("session %s start endpoint=%s gain=%.2f muted=%v", s.id, cfg.Addr(), e.gain.Load(), cfg.InitialMuted)
	e.setStateLocked(s, Connecting)

	go e.run(s)
	return true
}

// Stop asks the running session to end. It returns immediately; the engine
// reports Stopping at once and Disconnected when the worker has released
// its resources. Stop is a no-op when nothing is running.
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.sess
	if s == nil || s.stopRequested.Load() {
		e.mu.Unlock()
		return
	}
	s.stopRequested.Store(true)
	e.setStateLocked(s, Stopping)
	e.mu.Unlock()

	e.logger.InfoPrintf("session %s stop requested", s.id)
	s.cancel()
}

// SetGain changes the gain applied to subsequent buffers. The value is
// clamped to [0, 1] and the stored value is returned.
func (e *Engine) SetGain(v float32) float32 {
	g := e.gain.Store(v)
	e.publishParams()
	return g
}

// SetMuted changes the mute flag applied to subsequent buffers.
func (e *Engine) SetMuted(muted bool) {
	e.muted.Store(muted)
	e.publishParams()
}

// Gain returns the current gain.
func (e *Engine) Gain() float32 {
	return e.gain.Load()
}

// Muted returns the current mute flag.
func (e *Engine) Muted() bool {
	return e.muted.Load()
}

// State returns the current session state.
func (e *Engine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a telemetry event describing the engine right now. The
// throughput fields are zero.
func (e *Engine) Snapshot() Telemetry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.telemetryLocked(e.sess, e.state)
}

// Done returns a channel that is closed when the current session has fully
// ended. With no session running the channel is already closed.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return closedCh
	}
	return e.sess.done
}

// Wait blocks until the current session has ended or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	select {
	case <-e.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error that ended the most recent session. It is nil when
// that session was stopped or no session has run.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Subscribe registers an observer for telemetry events.
func (e *Engine) Subscribe(obs Observer) (cancel func()) {
	return e.pub.Subscribe(obs)
}

// DroppedEvents returns how many telemetry events were dropped because
// observers fell behind.
func (e *Engine) DroppedEvents() int64 {
	return e.pub.Dropped()
}

// Close stops any running session, waits for it to end and shuts down
// telemetry delivery. The engine cannot be started again.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.Stop()
	<-e.Done()
	return e.pub.Close()
}

func (e *Engine) publishParams() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed && e.sess == nil {
		return
	}
	e.pub.Publish(e.telemetryLocked(e.sess, e.state))
}

func (e *Engine) setStateLocked(s *session, st SessionState) {
	e.state = st
	e.pub.Publish(e.telemetryLocked(s, st))
}

// transition moves the running session to st unless a stop has been
// requested, in which case Stopping stays in place and false is returned.
func (e *Engine) transition(s *session, st SessionState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.stopRequested.Load() {
		return false
	}
	e.setStateLocked(s, st)
	return true
}

// report publishes a throughput window for a connected session.
func (e *Engine) report(s *session, n uint64, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.stopRequested.Load() {
		return
	}
	t := e.telemetryLocked(s, Connected)
	t.TxBytes = n
	t.Kbps = kbps(n, d)
	e.pub.Publish(t)
	e.logger.DebugPrintf("tx %d bytes in %dms (%d kbps) gain=%.2f muted=%v", n, d.Milliseconds(), t.Kbps, t.Gain, t.Muted)
}

// finish records the end of s and returns the engine to Disconnected.
func (e *Engine) finish(s *session, cause error) {
	e.mu.Lock()
	t := e.telemetryLocked(s, Disconnected)
	if cause != nil {
		t.Error = cause.Error()
	}
	e.state = Disconnected
	e.sess = nil
	e.err = cause
	e.pub.Publish(t)
	e.mu.Unlock()

	s.cancel()
	switch {
	case cause == nil:
		e.logger.InfoPrintf("session %s ended attempts=%d tx=%d", s.id, s.attempts.Load(), t.SessionTxBytes)
	case errors.Is(cause, ErrCaptureUnavailable):
		e.logger.ErrorPrintf("session %s ended: %v", s.id, cause)
	default:
		e.logger.WarnPrintf("session %s ended: %v", s.id, cause)
	}
	close(s.done)
}

func (e *Engine) telemetryLocked(s *session, st SessionState) Telemetry {
	t := Telemetry{
		Status: st,
		Gain:   e.gain.Load(),
		Muted:  e.muted.Load(),
		Time:   time.Now(),
	}
	if s != nil {
		t.SessionID = s.id
		t.Endpoint = s.cfg.Addr()
		t.SessionTxBytes = s.txBytes.Load()
		// Attempts describes an active session; Stopping and Disconnected
		// report zero.
		if st == Connecting || st == Connected {
			t.Attempts = s.attempts.Load()
		}
	}
	return t
}
