package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/regcascade/internal/ledger"
	"github.com/zjrosen/regcascade/internal/presentation"
	"github.com/zjrosen/regcascade/internal/registration"
)

var (
	planJSON bool
	planDiff bool
)

var planCmd = &cobra.Command{
	Use:   "plan JOB",
	Short: "Show the command a job would run, without running it",
	Long: `Compile a job file into its antsRegistration command and print it, one
term per line with the rule that produced it. Nothing is executed and no file
is written.

With --diff the command is compared against the last recorded invocation for
the same output. Downsampled copies named in the recorded command are mapped
back to the job's own images first, so only real changes show.

Examples:
  regcascade plan s01.yaml
  regcascade plan s01.yaml --json | jq -r '.args | join(" ")'
  regcascade plan s01.yaml --diff`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(envOptions{})
		if err != nil {
			return err
		}
		defer e.close()

		job, err := registration.LoadJob(e.fs, args[0])
		if err != nil {
			return err
		}
		plan, err := e.service.Plan(job)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !planDiff {
			if planJSON {
				return presentation.NewFormatter(out).FormatPlan(presentation.FromPlan(plan))
			}
			return plan.Render(out)
		}

		repo, err := e.requireLedger()
		if err != nil {
			return err
		}
		outputs := plan.Outputs()
		if len(outputs) == 0 {
			return errors.New("plan declares no outputs")
		}
		prev, err := repo.LatestForOutput(outputs[0])
		var notFound *ledger.NotFoundError
		if errors.As(err, &notFound) {
			_, _ = fmt.Fprintf(out, "no recorded invocation for %s\n", outputs[0])
			return plan.Render(out)
		}
		if err != nil {
			return err
		}

		recorded := presentation.RebaseArgs(prev.Args, prev.Inputs, plan.Inputs())
		changes := presentation.DiffArgs(recorded, plan.Args())
		if !presentation.Changed(changes) {
			_, _ = fmt.Fprintf(out, "unchanged since invocation %s (%s)\n", prev.ID, prev.Status)
			return nil
		}
		_, _ = fmt.Fprintf(out, "changes since invocation %s (%s):\n", prev.ID, prev.Status)
		return presentation.WriteArgDiff(out, changes)
	},
}

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON")
	planCmd.Flags().BoolVar(&planDiff, "diff", false, "compare against the last recorded invocation")
	rootCmd.AddCommand(planCmd)
}
