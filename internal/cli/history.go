package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"company-lookup/internal/lookup"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show and manage the search history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent searches, most recent first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		items, err := application.History.List()
		if err != nil {
			application.Logger.Warn().Err(err).Msg("search history unreadable")
		}

		if historyJSON {
			return printJSON(cmd.OutOrStdout(), items)
		}
		for _, item := range items {
			fmt.Fprintln(cmd.OutOrStdout(), item)
		}
		return nil
	},
}

var historyRemoveCmd = &cobra.Command{
	Use:   "remove <cui>",
	Short: "Remove one identifier from the history",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cui, err := lookup.NormalizeIdentifier(args[0])
		if err != nil {
			return err
		}
		return application.History.Remove(cui)
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the search history",
	RunE: func(_ *cobra.Command, _ []string) error {
		return application.History.Clear()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyRemoveCmd, historyClearCmd)

	historyListCmd.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
}
