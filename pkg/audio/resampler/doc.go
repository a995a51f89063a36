// Package resampler converts 16-bit PCM between sample rates and between
// mono and stereo. Rate conversion uses go-audio-resampling; channel
// conversion is done in place.
//
// Example usage:
//
//	r, err := resampler.New(file, resampler.Format{SampleRate: 16000}, resampler.Format{SampleRate: 48000, Stereo: true})
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	io.Copy(dst, r)
package resampler
