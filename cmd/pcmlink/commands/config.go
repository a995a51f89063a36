package commands

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/haivivi/pcmlink/pkg/cli"
	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage pcmlink configuration.

Configuration is stored in ~/.pcmlink/pcmlink/config.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCmd.PersistentPreRun(cmd, args)
		_, err := loadConfig()
		return err
	},
}

// contextCmd represents the context subcommand
var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage contexts",
	Long:  `Manage pcmlink contexts, one per receiver.`,
}

// contextListCmd lists all contexts
var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := globalConfig.ListContexts()
		if len(names) == 0 {
			fmt.Println("No contexts configured.")
			fmt.Println("\nCreate one with:")
			fmt.Println("  pcmlink config context add studio --host=10.0.0.5 --port=7700")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tRECEIVER\tSOURCE\tGAIN\tMUTED")
		for _, name := range names {
			ctx, _ := globalConfig.GetContext(name)
			cfg := ctx.StreamConfig()
			current := ""
			if name == globalConfig.CurrentContext {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%v\n", current, name, cfg.Addr(), ctx.CaptureSource(), cfg.InitialGain, cfg.InitialMuted)
		}
		return w.Flush()
	},
}

// contextUseCmd switches the current context
var contextUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch to a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := globalConfig.UseContext(name); err != nil {
			return err
		}
		fmt.Printf("Switched to context %q\n", name)
		return nil
	},
}

// contextAddCmd creates or updates a context from flags
var contextAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create or update a context",
	Long: `Create or update a context with the specified settings.

Examples:
  # Create a new context
  pcmlink config context add studio --host=10.0.0.5 --port=7700

  # Capture from input device 2 and serve the monitor
  pcmlink config context add studio --source=portaudio:2 --monitor=:8080`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		// Get existing context or create new one
		ctx, err := globalConfig.GetContext(name)
		if err != nil {
			ctx = &cli.Context{Name: name}
		}

		for _, key := range []string{"host", "port", "gain", "muted", "source", "monitor", "history"} {
			if !cmd.Flags().Changed(key) {
				continue
			}
			v, _ := cmd.Flags().GetString(key)
			if err := ctx.Set(key, v); err != nil {
				return err
			}
		}

		if err := globalConfig.AddContext(name, ctx); err != nil {
			return err
		}
		fmt.Printf("Context %q saved\n", name)
		return nil
	},
}

// contextSetCmd sets one key of a context
var contextSetCmd = &cobra.Command{
	Use:   "set <name> <key> <value>",
	Short: "Set one context setting",
	Long: `Set one setting of an existing context.

Keys: host, port, gain, muted, source, monitor, history, extra.<name>`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := globalConfig.GetContext(args[0])
		if err != nil {
			return err
		}
		if err := ctx.Set(args[1], args[2]); err != nil {
			return err
		}
		if err := globalConfig.Save(); err != nil {
			return err
		}
		fmt.Printf("Context %q: %s = %s\n", args[0], args[1], args[2])
		return nil
	},
}

// contextDeleteCmd deletes a context
var contextDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := globalConfig.DeleteContext(name); err != nil {
			return err
		}
		fmt.Printf("Context %q deleted\n", name)
		return nil
	},
}

// contextShowCmd shows the current context details
var contextShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show context details",
	Long:  `Show details of a context. If no name is provided, shows the current context.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) > 0 {
			name = args[0]
		} else {
			if globalConfig.CurrentContext == "" {
				return fmt.Errorf("no current context set. Use 'pcmlink config context use <name>' to set one")
			}
			name = globalConfig.CurrentContext
		}
		ctx, err := globalConfig.GetContext(name)
		if err != nil {
			return err
		}

		cfg := ctx.StreamConfig()
		title := name
		if name == globalConfig.CurrentContext {
			title += " (current)"
		}
		rows := [][2]string{
			{"receiver", cfg.Addr()},
			{"source", ctx.CaptureSource()},
			{"gain", fmt.Sprintf("%.2f", cfg.InitialGain)},
			{"muted", fmt.Sprint(cfg.InitialMuted)},
			{"monitor", valueOrNotSet(ctx.Monitor)},
			{"history", fmt.Sprint(ctx.History)},
		}
		for _, k := range sortedKeys(ctx.Extra) {
			rows = append(rows, [2]string{"extra." + k, ctx.Extra[k]})
		}
		fmt.Println(cli.Panel{Styles: cli.NewStyles(cli.DefaultTheme), Title: title, Rows: rows}.Render())
		fmt.Printf("\nConfig file: %s\n", globalConfig.Path())
		return nil
	},
}

// contextCurrentCmd shows the current context name
var contextCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		if globalConfig.CurrentContext == "" {
			fmt.Println("No current context set")
			return nil
		}
		fmt.Println(globalConfig.CurrentContext)
		return nil
	},
}

func valueOrNotSet(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(not set)"
	}
	return s
}

func init() {
	configCmd.AddCommand(contextCmd)

	contextCmd.AddCommand(contextListCmd)
	contextCmd.AddCommand(contextUseCmd)
	contextCmd.AddCommand(contextAddCmd)
	contextCmd.AddCommand(contextSetCmd)
	contextCmd.AddCommand(contextDeleteCmd)
	contextCmd.AddCommand(contextShowCmd)
	contextCmd.AddCommand(contextCurrentCmd)

	// Flags for context add; values go through cli.Context.Set.
	contextAddCmd.Flags().String("host", "", "receiver host")
	contextAddCmd.Flags().String("port", "", "receiver port")
	contextAddCmd.Flags().String("gain", "", "gain in [0, 1]")
	contextAddCmd.Flags().String("muted", "", "start muted (true/false)")
	contextAddCmd.Flags().String("source", "", "capture source spec")
	contextAddCmd.Flags().String("monitor", "", "HTTP monitor listen address")
	contextAddCmd.Flags().String("history", "", "record sessions (true/false)")
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
