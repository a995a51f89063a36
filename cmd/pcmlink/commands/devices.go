package commands

import (
	"os"

	"github.com/haivivi/pcmlink/pkg/audio/capture"
	"github.com/haivivi/pcmlink/pkg/audio/portaudio"
	"github.com/haivivi/pcmlink/pkg/cli"
	"github.com/spf13/cobra"
)

var devicesJSON bool

// devicesCmd lists audio devices and capture sources
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	Long: `List the audio devices PortAudio can open. Use the index with
--source portaudio:<index> to capture from a specific input.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if devicesJSON {
			devs, err := portaudio.Devices()
			if err != nil {
				return err
			}
			return cli.Output(devs, cli.OutputOptions{Format: cli.FormatJSON})
		}
		if err := portaudio.PrintDevices(os.Stdout); err != nil {
			return err
		}
		cli.PrintInfo("capture sources: %v", capture.Schemes())
		return nil
	},
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "print devices as JSON")
}
