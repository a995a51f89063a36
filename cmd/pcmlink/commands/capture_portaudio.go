package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/capture"
	"github.com/haivivi/pcmlink/pkg/audio/pcm"
	"github.com/haivivi/pcmlink/pkg/audio/portaudio"
	"github.com/haivivi/pcmlink/pkg/uplink"
)

func init() {
	capture.Register("portaudio", openPortAudio)
}

// openPortAudio opens a sound card input. The argument is a device index;
// empty selects the default input device.
func openPortAudio(arg string, format pcm.Format, bufferDuration time.Duration) (uplink.Source, error) {
	device := portaudio.DefaultDevice
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid device index %q", arg)
		}
		device = n
	}
	return portaudio.NewInputStream(format, bufferDuration, device)
}
