// Package app provides the commands of the Supernova sync engine.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/NovaUNL/Supernova-sub000/internal/versions"
)

// ValidationError is a bad command line argument. It is the only error that makes the
// process exit with status 2.
type ValidationError struct {
	Arg string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %v", e.Arg, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewRootCmd creates the root command. setupLogging is called with the --log-format and
// --log-level values before any subcommand runs.
func NewRootCmd(setupLogging func(format, level string)) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "supernova-sync",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Supernova upstream sync engine",
		Long: `Supernova sync engine mirrors the university information system into the Supernova
database. It runs one sync on demand or keeps a schedule of fast, slow and full runs.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if setupLogging == nil {
				return
			}
			format, _ := cmd.Flags().GetString("log-format")
			level, _ := cmd.Flags().GetString("log-level")
			setupLogging(format, level)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json or text)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.SetGlobalNormalizationFunc(underscoreToDash)

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// underscoreToDash accepts --no_update as well as --no-update
func underscoreToDash(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func newVersionCmd() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}

			slog.Info("supernova-sync version",
				"version", info.Version,
				"commit", info.Commit,
				"built", info.BuildDate,
				"go", info.GoVersion,
				"platform", info.Platform)
			return nil
		},
	}
	versionCmd.Flags().String("format", "", "Output format (json)")
	return versionCmd
}
