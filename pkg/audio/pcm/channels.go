package pcm

// UpmixMono copies mono 16-bit samples from src into dst as interleaved
// stereo, duplicating each sample to both channels. It returns the number of
// bytes written to dst, which is at most len(dst) rounded down to a frame.
func UpmixMono(dst, src []byte) int {
	n := 0
	for i := 0; i+1 < len(src) && n+3 < len(dst); i += 2 {
		dst[n], dst[n+1] = src[i], src[i+1]
		dst[n+2], dst[n+3] = src[i], src[i+1]
		n += 4
	}
	return n
}
