package commands

import (
	"github.com/haivivi/pcmlink/pkg/cli"
	"github.com/haivivi/pcmlink/pkg/uplink"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyFormat string
	historyKeep   int
)

// historyCmd shows recorded sessions
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded sessions",
	Long: `Show sessions recorded by 'pcmlink run --history', newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := uplink.NewHistory(store).List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		return cli.Output(cli.Sessions(recs), cli.OutputOptions{Format: cli.OutputFormat(historyFormat)})
	},
}

// historyPruneCmd deletes old sessions
var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := uplink.NewHistory(store).Prune(cmd.Context(), historyKeep)
		if err != nil {
			return err
		}
		cli.PrintSuccess("deleted %d sessions", n)
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum sessions to show (0 for all)")
	historyCmd.Flags().StringVarP(&historyFormat, "output", "o", string(cli.FormatTable), "output format: table, yaml or json")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 100, "number of sessions to keep")
}
