package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/regcascade/internal/batch"
	"github.com/zjrosen/regcascade/internal/log"
	"github.com/zjrosen/regcascade/internal/watcher"
)

var (
	runWatch bool
	runJSON  bool
)

var runCmd = &cobra.Command{
	Use:   "run JOB...",
	Short: "Register one or more job files in order",
	Long: `Register job files one after another, stopping at the first failure.

An invocation whose outputs already exist is skipped, so re-running a job is
cheap. With --watch the jobs are re-run whenever their files change.

Examples:
  regcascade run subjects/s01.yaml
  regcascade run s01.yaml s02.yaml --json
  regcascade run s01.yaml --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(envOptions{verbose: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer e.close()

		ctx := cmd.Context()
		stop := reportProgress(ctx, cmd.ErrOrStderr(), e.events)
		err = runJobs(ctx, e, cmd.OutOrStdout(), args)
		if !runWatch {
			stop()
			return err
		}
		defer stop()
		if err != nil {
			log.ErrorErr(log.CatWatch, "Initial run failed, watching for changes", err)
		}
		return watchJobs(ctx, e, cmd.OutOrStdout(), args)
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "re-run jobs when their files change")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(runCmd)
}

func runJobs(ctx context.Context, e *env, w io.Writer, jobPaths []string) error {
	runner := batch.NewRunner(e.fs, e.service,
		batch.WithWorkers(1),
		batch.WithFailFast(true),
		batch.WithEvents(e.events),
		batch.WithTracer(e.tracing.Tracer()),
	)
	results, err := runner.Run(ctx, jobPaths)
	if perr := printResults(w, results, runJSON); perr != nil {
		return perr
	}
	return err
}

func watchJobs(ctx context.Context, e *env, w io.Writer, jobPaths []string) error {
	wt, err := watcher.New(watcher.DefaultConfig(jobPaths...))
	if err != nil {
		return err
	}
	changes, err := wt.Start()
	if err != nil {
		return err
	}
	defer func() { _ = wt.Stop() }()

	_, _ = fmt.Fprintf(w, "watching %d job file(s), press Ctrl-C to stop\n", len(jobPaths))
	for {
		select {
		case <-ctx.Done():
			return nil
		case changed := <-changes:
			for _, path := range changed {
				if ctx.Err() != nil {
					return nil
				}
				log.Info(log.CatWatch, "Job file changed", "path", path)
				if err := runJobs(ctx, e, w, []string{path}); err != nil {
					log.ErrorErr(log.CatWatch, "Re-run failed", err, "path", path)
				}
			}
		}
	}
}
