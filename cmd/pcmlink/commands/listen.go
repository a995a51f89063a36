package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/portaudio"
	"github.com/haivivi/pcmlink/pkg/cli"
	"github.com/haivivi/pcmlink/pkg/receiver"
	"github.com/haivivi/pcmlink/pkg/uplink"
	"github.com/spf13/cobra"
)

var (
	listenOutput    string
	listenPlay      bool
	listenDevice    int
	listenExclusive bool
	listenIdle      time.Duration
)

// listenCmd runs a receiver
var listenCmd = &cobra.Command{
	Use:   "listen [addr]",
	Short: "Receive an uplink stream",
	Long: `Accept uplink streams on a TCP address and write the audio to a
file or play it on an output device. Without -o or --play the audio is
counted and discarded.

When -o names a directory, each stream is written to its own file.`,
	Example: `  pcmlink listen :7700 --play
  pcmlink listen 0.0.0.0:7700 -o capture.pcm`,
	Args: cobra.MaximumNArgs(1),
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVarP(&listenOutput, "output", "o", "", "write received audio to this file or directory")
	listenCmd.Flags().BoolVar(&listenPlay, "play", false, "play received audio")
	listenCmd.Flags().IntVar(&listenDevice, "device", portaudio.DefaultDevice, "output device index for --play")
	listenCmd.Flags().BoolVar(&listenExclusive, "exclusive", true, "reject a stream while another is active")
	listenCmd.Flags().DurationVar(&listenIdle, "idle", 5*time.Second, "close streams idle for this long (0 disables)")
}

func runListen(cmd *cobra.Command, args []string) error {
	addr := fmt.Sprintf(":%d", uplink.DefaultPort)
	if len(args) > 0 {
		addr = args[0]
	}
	if listenPlay && listenOutput != "" {
		return errors.New("--play and --output are exclusive")
	}

	rcv := &receiver.Receiver{
		Format:      uplink.Format,
		Exclusive:   listenExclusive,
		IdleTimeout: listenIdle,
		OnStream: func(st receiver.StreamStats) {
			msg := fmt.Sprintf("stream from %s ended: %s in %s", st.Remote, cli.FormatBytes(uint64(st.Bytes)), cli.FormatDuration(st.Duration))
			if st.Err != nil {
				cli.PrintWarning("%s (%v)", msg, st.Err)
				return
			}
			cli.PrintInfo("%s", msg)
		},
	}
	switch {
	case listenPlay:
		rcv.Sink = playSink
	case listenOutput != "":
		rcv.Sink = fileSink(listenOutput)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	cli.PrintSuccess("listening on %s (%s)", ln.Addr(), uplink.Format)

	errCh := make(chan error, 1)
	go func() { errCh <- rcv.Serve(ln) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case err := <-errCh:
		return err
	}
	rcv.Close()
	st := rcv.Stats()
	slog.Info("receiver: closed", "streams", st.Streams, "bytes", st.Bytes)
	return nil
}

func playSink(net.Addr) (io.WriteCloser, error) {
	return portaudio.NewOutputStream(uplink.Format, uplink.DefaultBufferDuration, listenDevice)
}

// fileSink writes to path, or to a timestamped file inside path when it is
// a directory.
func fileSink(path string) func(net.Addr) (io.WriteCloser, error) {
	return func(remote net.Addr) (io.WriteCloser, error) {
		name := path
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			name = filepath.Join(path, fmt.Sprintf("uplink-%s.pcm", time.Now().Format("20060102-150405.000")))
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		slog.Info("receiver: writing stream", "remote", remote, "file", name)
		return f, nil
	}
}
