// Package cli provides the configuration, output and terminal rendering
// helpers used by the pcmlink command.
//
// Configuration is stored in ~/.pcmlink/<app>/config.yaml and holds named
// contexts, similar to kubectl. A context remembers one receiver endpoint
// together with the gain, mute flag and capture source to use with it.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig("pcmlink")
//	ctx, err := cfg.ResolveContext("")
//	stream := ctx.StreamConfig()
//
//	cli.Output(records, cli.OutputOptions{Format: cli.FormatJSON})
package cli
