package resampler

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/haivivi/pcmlink/pkg/audio/pcm"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Reader wraps an io.Reader of src-format PCM and yields dst-format PCM.
// Reads always return whole frames. It is not safe for concurrent reads.
type Reader struct {
	src    *frameReader
	srcFmt Format
	dstFmt Format

	rs       resampling.Resampler
	readBuf  []byte
	leftover []byte

	mu       sync.Mutex
	closeErr error
}

// New returns a Reader converting src from srcFmt to dstFmt.
func New(src io.Reader, srcFmt, dstFmt Format) (*Reader, error) {
	if srcFmt.SampleRate <= 0 || dstFmt.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid sample rate %d -> %d", srcFmt.SampleRate, dstFmt.SampleRate)
	}
	r := &Reader{
		src:    newFrameReader(src, srcFmt.frameBytes()),
		srcFmt: srcFmt,
		dstFmt: dstFmt,
	}
	if srcFmt.SampleRate != dstFmt.SampleRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dstFmt.SampleRate),
			Channels:   dstFmt.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: %w", err)
		}
		r.rs = rs
	}
	return r, nil
}

// Read fills p with converted PCM.
func (r *Reader) Read(p []byte) (int, error) {
	fb := r.dstFmt.frameBytes()
	if len(p) < fb {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/fb*fb]

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.leftover) > 0 {
		n := copy(p, r.leftover)
		r.leftover = r.leftover[n:]
		return n, nil
	}
	if r.closeErr != nil {
		return 0, r.closeErr
	}
	if r.rs == nil {
		return r.readChannels(p)
	}
	return r.readResampled(p)
}

// readChannels reads enough source data for len(p) destination bytes and
// converts the channel layout.
func (r *Reader) readChannels(p []byte) (int, error) {
	frames := len(p) / r.dstFmt.frameBytes()
	want := frames * r.srcFmt.frameBytes()
	if cap(r.readBuf) < want {
		r.readBuf = make([]byte, want)
	}
	buf := r.readBuf[:want]
	n, err := r.src.Read(buf)
	if n == 0 {
		return 0, err
	}
	buf = buf[:n]
	switch {
	case r.srcFmt.Stereo == r.dstFmt.Stereo:
		return copy(p, buf), err
	case r.dstFmt.Stereo:
		return pcm.UpmixMono(p, buf), err
	default:
		return downmixStereo(p, buf), err
	}
}

func (r *Reader) readResampled(p []byte) (int, error) {
	// Convert channels first so the resampler always sees dst channels.
	ratio := float64(r.srcFmt.SampleRate) / float64(r.dstFmt.SampleRate)
	frames := int(float64(len(p)/r.dstFmt.frameBytes())*ratio) + 4
	tmp := make([]byte, frames*r.dstFmt.frameBytes())
	n, readErr := r.readChannels(tmp)
	if n == 0 {
		return 0, readErr
	}

	in := make([]float64, n/2)
	for i := range in {
		in[i] = float64(int16(binary.LittleEndian.Uint16(tmp[i*2:]))) / 32768
	}
	out, err := r.rs.Process(in)
	if err != nil {
		return 0, fmt.Errorf("resampler: %w", err)
	}
	if len(out) == 0 {
		return 0, readErr
	}

	ch := r.dstFmt.channels()
	out = out[:len(out)/ch*ch]
	b := make([]byte, len(out)*2)
	for i, s := range out {
		v := math.Round(s * 32767)
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(b[i*2:], uint16(int16(v)))
	}
	c := copy(p, b)
	if c < len(b) {
		r.leftover = append(r.leftover, b[c:]...)
	}
	return c, readErr
}

// Close releases the resampler. Later reads return io.ErrClosedPipe.
func (r *Reader) Close() error {
	return r.CloseWithError(fmt.Errorf("resampler: %w", io.ErrClosedPipe))
}

// CloseWithError releases the resampler. Later reads return err.
func (r *Reader) CloseWithError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = err
	}
	r.rs = nil
	r.leftover = nil
	return nil
}

// downmixStereo averages the channels of stereo src into mono dst and
// returns the bytes written.
func downmixStereo(dst, src []byte) int {
	n := 0
	for i := 0; i+3 < len(src) && n+1 < len(dst); i += 4 {
		l := int32(int16(binary.LittleEndian.Uint16(src[i:])))
		r := int32(int16(binary.LittleEndian.Uint16(src[i+2:])))
		binary.LittleEndian.PutUint16(dst[n:], uint16(int16((l+r)/2)))
		n += 2
	}
	return n
}
