package pcm

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// Clamp01 limits v to [0, 1]. NaN is treated as 0.
func Clamp01(v float32) float32 {
	switch {
	case math.IsNaN(float64(v)):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ScaleSample multiplies s by gain, rounding half away from zero and
// clamping to the int16 range.
func ScaleSample(s int16, gain float32) int16 {
	v := math.Round(float64(s) * float64(gain))
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Apply processes a buffer of interleaved little-endian 16-bit samples in
// place. A muted buffer is zero-filled regardless of gain; a gain of exactly
// 1.0 leaves the buffer untouched. len(p) must be even.
func Apply(p []byte, gain float32, muted bool) {
	if muted {
		clear(p)
		return
	}
	if gain == 1.0 {
		return
	}
	for i := 0; i+1 < len(p); i += 2 {
		s := int16(binary.LittleEndian.Uint16(p[i:]))
		binary.LittleEndian.PutUint16(p[i:], uint16(ScaleSample(s, gain)))
	}
}

// AtomicGain holds a linear gain in [0, 1] that can be read and written
// concurrently without locks. The zero value holds gain 0.
type AtomicGain struct {
	bits atomic.Uint32
}

// NewAtomicGain returns an AtomicGain initialized to the clamped value.
func NewAtomicGain(v float32) *AtomicGain {
	g := &AtomicGain{}
	g.Store(v)
	return g
}

// Load returns the current gain.
func (g *AtomicGain) Load() float32 {
	return math.Float32frombits(g.bits.Load())
}

// Store clamps v to [0, 1] and stores it. It returns the stored value.
func (g *AtomicGain) Store(v float32) float32 {
	v = Clamp01(v)
	g.bits.Store(math.Float32bits(v))
	return v
}

// Peak returns the largest absolute sample value in p, saturating at
// math.MaxInt16.
func Peak(p []byte) int16 {
	var peak int32
	for i := 0; i+1 < len(p); i += 2 {
		s := int32(int16(binary.LittleEndian.Uint16(p[i:])))
		if s < 0 {
			s = -s
		}
		peak = max(peak, s)
	}
	return int16(min(peak, math.MaxInt16))
}
