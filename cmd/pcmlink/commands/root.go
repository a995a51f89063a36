package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/haivivi/pcmlink/pkg/cli"
	"github.com/spf13/cobra"
)

const appName = "pcmlink"

var (
	cfgFile      string
	contextName  string
	verbose      bool
	globalConfig *cli.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pcmlink",
	Short: "Live PCM audio uplink",
	Long: `pcmlink captures audio and streams it to a TCP receiver as raw
PCM16 stereo at 48kHz, reconnecting until it is stopped.

Configuration is stored in ~/.pcmlink/pcmlink/ and supports multiple contexts,
one per receiver you stream to.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUplink(cmd, args)
	},
}

// Command returns the root cobra command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "", "", "config file (default is ~/.pcmlink/pcmlink/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context to use (default is current context)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

// configErr stores the config load error for deferred reporting.
var configErr error

func initConfig() {
	if cfgFile != "" {
		globalConfig, configErr = cli.LoadConfigWithPath(appName, cfgFile)
		return
	}
	globalConfig = cli.LoadConfigIfExists(appName)
}

// loadConfig returns the config, creating the file on first use.
func loadConfig() (*cli.Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}
	if configErr != nil {
		return nil, fmt.Errorf("%s config: %w", appName, configErr)
	}
	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s config: %w", appName, err)
	}
	return globalConfig, nil
}

// getContext returns the context to use, resolving from flag or current context.
func getContext() (*cli.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.ResolveContext(contextName)
}

// appPaths returns the data layout next to the config file.
func appPaths() (*cli.Paths, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cli.PathsFor(cfg), nil
}
