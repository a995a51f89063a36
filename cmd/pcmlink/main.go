// pcmlink streams live audio to a TCP receiver as raw PCM16 stereo 48kHz.
//
// Usage:
//
//	pcmlink run                          # Stream with the current context
//	pcmlink run -c studio --gain 0.5     # Stream with a named context
//	pcmlink listen :7700 -o capture.pcm  # Receive a stream into a file
//	pcmlink devices                      # List audio devices
//	pcmlink config context list          # List all contexts
//
// Configuration is stored in ~/.pcmlink/pcmlink/
package main

import (
	"os"

	"github.com/haivivi/pcmlink/cmd/pcmlink/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
