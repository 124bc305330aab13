// Package cli provides the Cobra commands of company-lookup.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"company-lookup/internal/app"
	"company-lookup/internal/config"
	"company-lookup/internal/logs"
)

var (
	cfgFile     string
	logLevel    string
	application *app.App

	rootCmd = &cobra.Command{
		Use:   "company-lookup",
		Short: "Company financial lookups with a local result cache",
		Long: `company-lookup fetches company registry data and yearly financial
records from the backend API, caches results locally and keeps a short
search history.

Run 'company-lookup serve' for the HTTP API, or use the subcommands to
query and manage the cache from the terminal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion":
				return nil
			}

			// a failed RunE skips the post-run hook
			if application != nil {
				_ = application.Close()
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			logCfg := cfg.Logs()
			logCfg.Output = cmd.ErrOrStderr()

			application, err = app.New(cmd.Context(), cfg, logs.New(logCfg))
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if application == nil {
				return nil
			}
			err := application.Close()
			application = nil
			return err
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.{yaml,toml,json})")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
