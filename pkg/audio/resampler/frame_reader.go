package resampler

import "io"

// frameReader returns data from r in whole frames, holding back a partial
// frame until the rest of it arrives.
type frameReader struct {
	r       io.Reader
	size    int
	pending []byte
}

func newFrameReader(r io.Reader, size int) *frameReader {
	return &frameReader{r: r, size: size, pending: make([]byte, 0, size)}
}

// Read reads a multiple of the frame size into p. A partial frame left at
// EOF is reported as io.ErrUnexpectedEOF.
func (fr *frameReader) Read(p []byte) (int, error) {
	if len(p) < fr.size {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/fr.size*fr.size]
	n := copy(p, fr.pending)
	fr.pending = fr.pending[:0]

	rn, err := fr.r.Read(p[n:])
	n += rn
	if rem := n % fr.size; rem != 0 {
		if err == io.EOF {
			return n - rem, io.ErrUnexpectedEOF
		}
		fr.pending = append(fr.pending, p[n-rem:n]...)
		n -= rem
	}
	return n, err
}
