// Package pcm provides types and utilities for working with raw PCM audio.
//
// Formats describe signed 16-bit little-endian audio at a fixed sample rate
// and channel count. Multi-channel formats are interleaved frame by frame.
//
// The package also holds the per-buffer signal path used by the uplink:
// Apply mutes or scales a buffer in place, and AtomicGain lets a control
// goroutine change the gain while an audio goroutine reads it.
//
// Example usage:
//
//	format := pcm.L16Stereo48K
//
//	// 10ms of 48kHz stereo is 1920 bytes
//	buf := make([]byte, format.BytesInDuration(10*time.Millisecond))
//
//	gain := pcm.NewAtomicGain(0.5)
//	pcm.Apply(buf, gain.Load(), false)
package pcm
