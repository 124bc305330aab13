package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"company-lookup/internal/lookup"
)

var (
	lookupYears   int
	lookupNoCache bool
	lookupRefresh bool
	lookupUpdate  bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <cui>",
	Short: "Look up a company and its financial records",
	Long: `Look up a company by fiscal code (CUI).

By default a cached result is used when present; a company the backend
does not know yet is processed first. Successful lookups are added to the
search history.

Examples:
  company-lookup lookup 14399840
  company-lookup lookup 14399840 --years 5
  company-lookup lookup 14399840 --refresh`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if lookupRefresh && lookupUpdate {
			return errors.New("--refresh and --update are mutually exclusive")
		}

		svc := application.Lookup
		ctx := cmd.Context()

		var (
			res lookup.Result
			err error
		)
		switch {
		case lookupUpdate:
			res, err = svc.UpdateFinancialRecords(ctx, args[0], lookupYears)
		case lookupRefresh:
			res, err = svc.Refresh(ctx, args[0], lookupYears)
		default:
			res, err = svc.Search(ctx, args[0], lookupYears, !lookupNoCache)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)

	lookupCmd.Flags().IntVarP(&lookupYears, "years", "y", lookup.DefaultYears, "number of years of financial records")
	lookupCmd.Flags().BoolVar(&lookupNoCache, "no-cache", false, "ignore a cached result and fetch from the backend")
	lookupCmd.Flags().BoolVar(&lookupRefresh, "refresh", false, "drop the cached result and fetch again")
	lookupCmd.Flags().BoolVar(&lookupUpdate, "update", false, "re-import the company from the registry")
}
