package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// wavInfo describes the PCM payload of a WAV file.
type wavInfo struct {
	SampleRate int
	Channels   int
	DataOffset int64
	DataSize   int64
}

var errNotWAV = errors.New("not a RIFF/WAVE file")

// parseWAV walks the RIFF chunks of r up to the data chunk. Only 16-bit
// integer PCM is accepted.
func parseWAV(r io.ReadSeeker) (*wavInfo, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errNotWAV
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, errNotWAV
	}

	var info wavInfo
	offset := int64(12)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return nil, fmt.Errorf("wav: no data chunk: %w", err)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))
		offset += 8

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too short (%d)", size)
			}
			var f [16]byte
			if _, err := io.ReadFull(r, f[:]); err != nil {
				return nil, fmt.Errorf("wav: fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(f[0:2])
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			bits := binary.LittleEndian.Uint16(f[14:16])
			if audioFormat != 1 && audioFormat != 0xFFFE {
				return nil, fmt.Errorf("wav: unsupported encoding %d", audioFormat)
			}
			if bits != 16 {
				return nil, fmt.Errorf("wav: unsupported bit depth %d", bits)
			}
			if info.Channels < 1 || info.Channels > 2 {
				return nil, fmt.Errorf("wav: unsupported channel count %d", info.Channels)
			}
			if _, err := r.Seek(size-16+size%2, io.SeekCurrent); err != nil {
				return nil, err
			}
		case "data":
			if info.SampleRate == 0 {
				return nil, errors.New("wav: data before fmt chunk")
			}
			info.DataOffset = offset
			info.DataSize = size
			return &info, nil
		default:
			if _, err := r.Seek(size+size%2, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
		offset += size + size%2
	}
}
