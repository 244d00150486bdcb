// Package cli implements the asyncpool command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	CmdRun      = "run"
	CmdValidate = "validate"
	CmdVersion  = "version"

	FlagConfig      = "config"
	FlagNoProgress  = "no-progress"
	FlagVerbose     = "verbose"
	FlagMaxFailures = "max-failures"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

type options struct {
	configPath  string
	noProgress  bool
	verbose     bool
	maxFailures int
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "asyncpool",
		Short: "Bulk-update table records through a bounded worker pool",
		Long: `asyncpool runs a configured set of field transforms over the records of a
table, never running more than a fixed number of updates at once, and writes
the results back in batches.

QUICK START:
  asyncpool validate --config job.yaml     # Check a job file
  asyncpool run --config job.yaml          # Run the job

Failed records never stop the job; they are listed in the report at the end.
A rejected batch write stops it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   CmdRun,
		Short: "Run a job",
		Long: `Run the job described by the configuration file.

In "all" mode every record of the table is processed, page by page. In
"selection" mode only the records selected in the view are processed.

When metrics.addr is set, Prometheus metrics are served on /metrics for the
duration of the run.

Examples:
  asyncpool run --config job.yaml
  asyncpool run --config job.yaml --no-progress --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, opts)
		},
	}

	validateCmd := &cobra.Command{
		Use:   CmdValidate,
		Short: "Validate a job file",
		Long:  `Load the configuration file and report every problem in it without contacting the record store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateJob(cmd, opts)
		},
	}

	versionCmd := &cobra.Command{
		Use:   CmdVersion,
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
			return err
		},
	}

	for _, c := range []*cobra.Command{runCmd, validateCmd} {
		c.Flags().StringVarP(&opts.configPath, FlagConfig, "c", "job.yaml", "Configuration file path")
	}
	runCmd.Flags().BoolVar(&opts.noProgress, FlagNoProgress, false, "Disable the progress bar")
	runCmd.Flags().BoolVarP(&opts.verbose, FlagVerbose, "v", false, "Log at debug level")
	runCmd.Flags().IntVar(&opts.maxFailures, FlagMaxFailures, 20, "Failed records listed in the report")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
