package uplink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
)

// run is the session worker. It owns the capture source and every
// connection of the session.
func (e *Engine) run(s *session) {
	var cause error
	defer func() {
		if r := recover(); r != nil {
			cause = fmt.Errorf("uplink: worker panic: %v", r)
		}
		e.finish(s, cause)
	}()

	src, err := e.openCapture()
	if err != nil {
		cause = err
		return
	}
	defer src.Close()

	buf := make([]byte, Format.BytesInDuration(e.opts.BufferDuration))
	for !s.stopRequested.Load() {
		conn, err := Dial(s.ctx, s.cfg.Host, s.cfg.Port, e.opts.ConnectTimeout)
		if err != nil {
			if s.stopRequested.Load() {
				return
			}
			e.logger.WarnPrintf("%v", err)
			if !e.retry(s) {
				return
			}
			continue
		}
		conn.SetWriteTimeout(e.opts.WriteTimeout)

		if !e.transition(s, Connected) {
			conn.Close()
			return
		}
		e.logger.InfoPrintf("connected to %s (%s)", conn.Addr(), conn.RemoteAddr())

		err = e.pump(s, src, conn, buf)
		conn.Close()
		if errors.Is(err, ErrCaptureUnavailable) {
			cause = err
			return
		}
		if s.stopRequested.Load() {
			return
		}
		e.logger.WarnPrintf("connection lost: %v", err)
		if !e.retry(s) {
			return
		}
	}
}

func (e *Engine) openCapture() (Source, error) {
	if e.opts.Capture == nil {
		return nil, fmt.Errorf("%w: no capture source configured", ErrCaptureUnavailable)
	}
	src, err := e.opts.Capture(Format, e.opts.BufferDuration)
	if err != nil {
		if errors.Is(err, ErrCaptureUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	return src, nil
}

// retry counts a failed attempt, reports Connecting and sleeps for the
// backoff. It returns false if the session was stopped meanwhile.
func (e *Engine) retry(s *session) bool {
	s.attempts.Add(1)
	if !e.transition(s, Connecting) {
		return false
	}
	timer := time.NewTimer(e.opts.RetryBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !s.stopRequested.Load()
	case <-s.ctx.Done():
		return false
	}
}

// pump moves audio from src to conn until the connection fails, capture
// ends or the session is stopped. Gain and mute are sampled once per
// buffer so a buffer is never processed with mixed parameters.
func (e *Engine) pump(s *session, src Source, conn *Conn, buf []byte) error {
	// A write blocked on a stalled peer returns as soon as the session stops.
	stopInterrupt := context.AfterFunc(s.ctx, conn.interrupt)
	defer stopInterrupt()

	var window uint64
	windowStart := time.Now()
	for !s.stopRequested.Load() {
		held := 0
		if s.split {
			buf[0] = s.pending
			held = 1
		}
		m, rerr := src.Read(buf[held:])
		n := held + m
		s.split = n&1 == 1
		if s.split {
			n--
			s.pending = buf[n]
			e.splitRead(s, m)
		}
		if n > 0 {
			gain, muted := e.gain.Load(), e.muted.Load()
			p := buf[:n]
			pcm.Apply(p, gain, muted)
			if err := conn.Write(p); err != nil {
				return err
			}
			window += uint64(n)
			s.txBytes.Add(uint64(n))
			if d := time.Since(windowStart); d >= e.opts.TelemetryInterval {
				e.report(s, window, d)
				window = 0
				windowStart = time.Now()
			}
		}
		switch {
		case rerr == nil && m > 0:
		case errors.Is(rerr, ErrCaptureUnavailable):
			return rerr
		case rerr == nil, errors.Is(rerr, io.EOF):
			return ErrEndOfStream
		default:
			return fmt.Errorf("%w: %v", ErrEndOfStream, rerr)
		}
	}
	return nil
}

// splitRead reports a capture read that ended inside a sample. The first
// one in a session is a warning.
func (e *Engine) splitRead(s *session, n int) {
	if s.splitWarned {
		e.logger.DebugPrintf("capture returned %d bytes, holding a split sample byte", n)
		return
	}
	s.splitWarned = true
	e.logger.WarnPrintf("capture returned %d bytes, holding a split sample byte", n)
}
