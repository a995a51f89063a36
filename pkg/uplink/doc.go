// Package uplink streams live PCM audio to a TCP receiver.
//
// An Engine owns at most one session. A session opens a capture Source,
// connects to the receiver and writes raw little-endian PCM16 stereo 48kHz
// buffers, applying the current gain and mute to each buffer. Connection
// failures are retried forever with a fixed backoff until Stop is called;
// only an unavailable capture source ends a session by itself, and Err
// reports it.
//
// Status is reported as Telemetry events through a Publisher, which never
// blocks the audio path: when observers fall behind the oldest events are
// dropped. Recorder is an observer that persists a SessionRecord for every
// finished session into a kv.Store.
//
// Example usage:
//
//	e := uplink.New(uplink.Options{Capture: capture.Opener("tone:440")})
//	defer e.Close()
//
//	e.Subscribe(uplink.ObserverFunc(func(t uplink.Telemetry) {
//		fmt.Println(t.Status, t.Kbps)
//	}))
//	e.Start(uplink.StreamConfig{Host: "127.0.0.1", Port: 7700, InitialGain: 1})
//	e.SetGain(0.5)
//	e.Stop()
//	<-e.Done()
package uplink
