package pcm

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
	"testing"
)

func samplesToBytes(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func expectedSample(s int16, gain float32) int16 {
	v := math.Round(float64(s) * float64(gain))
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, v)))
}

func TestApplyGain(t *testing.T) {
	samples := []int16{0, 1, -1, 3, -3, 100, -100, 12345, -12345, math.MaxInt16, math.MinInt16}
	gains := []float32{0, 0.1, 0.25, 0.5, 0.75, 0.999, 1}

	for _, g := range gains {
		buf := samplesToBytes(samples...)
		Apply(buf, g, false)
		got := bytesToSamples(buf)
		for i, s := range samples {
			if want := expectedSample(s, g); got[i] != want {
				t.Errorf("gain=%v sample=%d: got %d, want %d", g, s, got[i], want)
			}
		}
	}
}

func TestApplyUnityIsIdentical(t *testing.T) {
	in := samplesToBytes(1, -2, 32767, -32768, 555)
	buf := bytes.Clone(in)
	Apply(buf, 1.0, false)
	if !bytes.Equal(buf, in) {
		t.Errorf("gain=1 modified buffer: got %v, want %v", buf, in)
	}
}

func TestApplyHalf(t *testing.T) {
	buf := samplesToBytes(1000, -1000, 3, -3)
	Apply(buf, 0.5, false)
	got := bytesToSamples(buf)
	want := []int16{500, -500, 2, -2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestApplyMuted(t *testing.T) {
	for _, g := range []float32{0, 0.5, 1} {
		buf := samplesToBytes(1, -1, 32767, -32768)
		Apply(buf, g, true)
		for i, b := range buf {
			if b != 0 {
				t.Fatalf("gain=%v: byte %d = %d, want 0", g, i, b)
			}
		}
	}
}

func TestApplyEmpty(t *testing.T) {
	Apply(nil, 0.5, false)
	Apply([]byte{}, 0.5, true)
}

func TestScaleSampleClamps(t *testing.T) {
	if got := ScaleSample(math.MaxInt16, 1.5); got != math.MaxInt16 {
		t.Errorf("got %d, want %d", got, math.MaxInt16)
	}
	if got := ScaleSample(math.MinInt16, 1.5); got != math.MinInt16 {
		t.Errorf("got %d, want %d", got, math.MinInt16)
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in, want float32
	}{
		{-1, 0},
		{0, 0},
		{0.3, 0.3},
		{1, 1},
		{2, 1},
		{float32(math.NaN()), 0},
		{float32(math.Inf(1)), 1},
	}
	for _, tt := range tests {
		if got := Clamp01(tt.in); got != tt.want {
			t.Errorf("Clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAtomicGain(t *testing.T) {
	g := NewAtomicGain(3)
	if got := g.Load(); got != 1 {
		t.Fatalf("Load() = %v, want 1", got)
	}
	if got := g.Store(-0.5); got != 0 {
		t.Fatalf("Store(-0.5) = %v, want 0", got)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 1000 {
				g.Store(float32((i+j)%10) / 10)
				if v := g.Load(); v < 0 || v > 1 {
					t.Errorf("out of range gain %v", v)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkApply10ms(b *testing.B) {
	buf := make([]byte, L16Stereo48K.BytesInDuration(10_000_000))
	for i := range buf {
		buf[i] = byte(i)
	}
	b.SetBytes(int64(len(buf)))
	for b.Loop() {
		Apply(buf, 0.7, false)
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		in   []int16
		want int16
	}{
		{nil, 0},
		{[]int16{0, 0}, 0},
		{[]int16{5, -7, 3}, 7},
		{[]int16{math.MinInt16}, math.MaxInt16},
	}
	for _, tt := range tests {
		if got := Peak(samplesToBytes(tt.in...)); got != tt.want {
			t.Errorf("Peak(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
