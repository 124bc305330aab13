package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"company-lookup/internal/lookup"
)

var cacheClearYears int

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts and approximate size",
	RunE: func(cmd *cobra.Command, _ []string) error {
		stats, err := application.Cache.Stats()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "entries: %d\n", stats.Total)
		fmt.Fprintf(out, "expired: %d\n", stats.Expired)
		fmt.Fprintf(out, "size:    %s\n", stats.SizeLabel())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [cui]",
	Short: "Clear the whole cache, or one company's entries",
	Long: `Without arguments every cached result is removed; the search history
is kept. With a CUI only that company's entries are removed, or just one
period with --years.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := application.Cache

		if len(args) == 0 {
			removed, err := c.ClearAll()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
			return nil
		}

		cui, err := lookup.NormalizeIdentifier(args[0])
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("years") {
			if err := lookup.ValidateYears(cacheClearYears); err != nil {
				return err
			}
			return c.Clear(cui, cacheClearYears)
		}

		removed, err := c.ClearIdentifier(cui)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
		return nil
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired and corrupt cache entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		removed, err := application.Cache.SweepExpired()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheSweepCmd)

	cacheClearCmd.Flags().IntVar(&cacheClearYears, "years", 0, "only clear the entry for this period")
}
