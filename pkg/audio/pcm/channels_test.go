package pcm

import (
	"bytes"
	"testing"
)

func TestUpmixMono(t *testing.T) {
	src := samplesToBytes(1, -2, 300)
	dst := make([]byte, 12)
	if n := UpmixMono(dst, src); n != 12 {
		t.Fatalf("UpmixMono() = %d, want 12", n)
	}
	want := samplesToBytes(1, 1, -2, -2, 300, 300)
	if !bytes.Equal(dst, want) {
		t.Errorf("got %v, want %v", bytesToSamples(dst), bytesToSamples(want))
	}

	short := make([]byte, 6)
	if n := UpmixMono(short, src); n != 4 {
		t.Errorf("UpmixMono(short) = %d, want 4", n)
	}
}
