package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/zjrosen/regcascade/internal/batch"
)

var (
	batchWorkers  int
	batchFailFast bool
	batchJSON     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch PATTERN...",
	Short: "Register every job file matching the patterns",
	Long: `Discover job files with glob patterns (** matches any depth) and register
them on a bounded worker pool.

Examples:
  regcascade batch 'subjects/**/*.yaml'
  regcascade batch 'jobs/*.yaml' --workers 8 --fail-fast
  regcascade batch 'jobs/*.yaml' --json | jq '.[] | select(.status == "failed")'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(envOptions{})
		if err != nil {
			return err
		}
		defer e.close()

		jobPaths, err := batch.Discover(e.fs, args)
		if err != nil {
			return err
		}
		if len(jobPaths) == 0 {
			return errors.New("no job files matched")
		}

		workers := cfg.Batch.Workers
		if cmd.Flags().Changed("workers") {
			workers = batchWorkers
		}
		failFast := cfg.Batch.FailFast || batchFailFast

		ctx := cmd.Context()
		stop := reportProgress(ctx, cmd.ErrOrStderr(), e.events)
		runner := batch.NewRunner(e.fs, e.service,
			batch.WithWorkers(workers),
			batch.WithFailFast(failFast),
			batch.WithEvents(e.events),
			batch.WithTracer(e.tracing.Tracer()),
		)
		results, runErr := runner.Run(ctx, jobPaths)
		stop()

		if err := printResults(cmd.OutOrStdout(), results, batchJSON); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "j", batch.DefaultWorkers, "concurrent jobs (overrides batch.workers)")
	batchCmd.Flags().BoolVar(&batchFailFast, "fail-fast", false, "cancel remaining jobs after the first failure")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(batchCmd)
}
