package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/haivivi/pcmlink/pkg/audio/capture"
	"github.com/haivivi/pcmlink/pkg/cli"
	"github.com/haivivi/pcmlink/pkg/kv"
	"github.com/haivivi/pcmlink/pkg/monitor"
	"github.com/haivivi/pcmlink/pkg/uplink"
	"github.com/spf13/cobra"
)

var (
	// Command-line overrides
	flagHost     string
	flagPort     uint16
	flagGain     float32
	flagMuted    bool
	flagSource   string
	flagMonitor  string
	flagHistory  bool
	flagControls bool
	flagJSON     bool
)

// gainStep is the change applied by the + and - console commands.
const gainStep = 0.1

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stream audio to a receiver",
	Long: `Capture audio and stream it to a TCP receiver until interrupted.

Connection failures are retried every 500ms. The source is a capture spec:
portaudio[:<device>], silence, tone[:<hz>], file:<path> or loop:<path>.

With --controls, type on stdin to adjust the stream:
  m       toggle mute
  +  -    raise or lower the gain
  g 0.5   set the gain
  q       stop and exit`,
	Example: `  pcmlink run --host 10.0.0.5 --port 7700
  pcmlink run -c studio --source tone:1000 --monitor :8080`,
	RunE: runUplink,
}

func init() {
	runCmd.Flags().StringVar(&flagHost, "host", "", "receiver host")
	runCmd.Flags().Uint16Var(&flagPort, "port", 0, "receiver port")
	runCmd.Flags().Float32Var(&flagGain, "gain", 1, "initial gain in [0, 1]")
	runCmd.Flags().BoolVar(&flagMuted, "muted", false, "start muted")
	runCmd.Flags().StringVar(&flagSource, "source", "", "capture source spec")
	runCmd.Flags().StringVar(&flagMonitor, "monitor", "", "HTTP monitor listen address, e.g. :8080")
	runCmd.Flags().BoolVar(&flagHistory, "history", false, "record sessions in the history database")
	runCmd.Flags().BoolVar(&flagControls, "controls", false, "read control commands from stdin")
	runCmd.Flags().BoolVar(&flagJSON, "json", false, "print telemetry events as JSON")
}

func runUplink(cmd *cobra.Command, args []string) error {
	// No context set: use defaults
	ctx, err := getContext()
	if err != nil {
		ctx = &cli.Context{}
	}
	applyRunFlags(cmd, ctx)

	cfg := ctx.StreamConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The store is opened first so it closes after the engine has drained
	// its final events into the recorder.
	var store kv.Store
	if ctx.History {
		store, err = openHistory()
		if err != nil {
			return err
		}
		defer store.Close()
	}

	engine := uplink.New(uplink.Options{
		Capture: capture.Opener(ctx.CaptureSource()),
		Logger:  uplink.SlogLogger(slog.Default()),
	})
	defer engine.Close()

	styles := cli.NewStyles(cli.DefaultTheme)
	engine.Subscribe(uplink.ObserverFunc(func(t uplink.Telemetry) {
		if flagJSON {
			cli.Output(t, cli.OutputOptions{Format: cli.FormatJSONL})
			return
		}
		fmt.Println(styles.StatusLine(t))
	}))

	if store != nil {
		engine.Subscribe(uplink.NewRecorder(uplink.NewHistory(store), uplink.SlogLogger(slog.Default())))
	}

	if ctx.Monitor != "" {
		srv, err := startMonitor(engine, ctx.Monitor)
		if err != nil {
			return err
		}
		defer srv.Shutdown(context.Background())
	}

	fmt.Println(cli.Panel{
		Styles: styles,
		Title:  "pcmlink",
		Rows: [][2]string{
			{"receiver", cfg.Addr()},
			{"source", ctx.CaptureSource()},
			{"format", uplink.Format.String()},
			{"gain", fmt.Sprintf("%.2f", cfg.InitialGain)},
		},
	}.Render())
	fmt.Println("Press Ctrl+C to stop")

	engine.Start(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quit := make(chan struct{})
	if flagControls {
		go readControls(engine, quit)
	}

	select {
	case <-sigCh:
	case <-quit:
	case <-engine.Done():
	}
	return finishRun(engine, ctx, globalConfig)
}

// finishRun stops the engine and waits until every observer has handled the
// final event, then stores the last gain and mute in the context.
func finishRun(engine *uplink.Engine, ctx *cli.Context, cfg *cli.Config) error {
	engine.Close()

	if ctx.Name != "" && cfg != nil {
		ctx.SetGain(engine.Gain())
		ctx.Muted = engine.Muted()
		if err := cfg.Save(); err != nil {
			slog.Warn("failed to save context", "context", ctx.Name, "error", err)
		}
	}
	return engine.Err()
}

// applyRunFlags overrides context settings with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, ctx *cli.Context) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		ctx.Host = flagHost
	}
	if flags.Changed("port") {
		ctx.Port = flagPort
	}
	if flags.Changed("gain") {
		ctx.SetGain(flagGain)
	}
	if flags.Changed("muted") {
		ctx.Muted = flagMuted
	}
	if flags.Changed("source") {
		ctx.Source = flagSource
	}
	if flags.Changed("monitor") {
		ctx.Monitor = flagMonitor
	}
	if flags.Changed("history") {
		ctx.History = flagHistory
	}
}

func openHistory() (kv.Store, error) {
	paths, err := appPaths()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: paths.HistoryDir(), Logger: slog.Default()})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return store, nil
}

func startMonitor(engine *uplink.Engine, addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	mon := monitor.New(engine)
	srv := &http.Server{Handler: mon, ReadHeaderTimeout: 5 * time.Second}
	srv.RegisterOnShutdown(func() { mon.Close() })
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("monitor: serve failed", "error", err)
		}
	}()
	fmt.Printf("Monitor: http://%s\n", ln.Addr())
	return srv, nil
}

// readControls applies console commands until stdin ends or q is typed.
func readControls(engine *uplink.Engine, quit chan<- struct{}) {
	defer close(quit)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "m", "mute":
			engine.SetMuted(!engine.Muted())
		case "+":
			engine.SetGain(engine.Gain() + gainStep)
		case "-":
			engine.SetGain(engine.Gain() - gainStep)
		case "g", "gain":
			var g float32
			if len(fields) < 2 {
				fmt.Println("usage: g <0..1>")
				continue
			}
			if _, err := fmt.Sscan(fields[1], &g); err != nil {
				fmt.Println("usage: g <0..1>")
				continue
			}
			engine.SetGain(g)
		case "q", "quit":
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}
